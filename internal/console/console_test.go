package console

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	c := New("test", time.Minute, nil)
	c.Register("db", "dump", "", "dumps the store", func(string) (string, error) {
		return "dumped", nil
	})
	c.Register("report", "generate", "<channel>", "generates a report", func(arg string) (string, error) {
		return "report for " + arg, nil
	})

	reply, err := c.dispatch("db.dump\n")
	require.NoError(t, err)
	assert.Equal(t, "dumped", reply)

	reply, err = c.dispatch("report.generate 42\n")
	require.NoError(t, err)
	assert.Equal(t, "report for 42", reply)

	_, err = c.dispatch("db.dump now\n")
	assert.Error(t, err, "argument to a zero-parameter operation")

	_, err = c.dispatch("frobnicate\n")
	assert.Error(t, err)

	reply, err = c.dispatch("   \n")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestDispatch_Help(t *testing.T) {
	c := New("test", time.Minute, nil)
	c.Register("db", "save", "", "saves the store", func(string) (string, error) { return "", nil })

	reply, err := c.dispatch("help")
	require.NoError(t, err)
	assert.Contains(t, reply, "Operations:")
	assert.Contains(t, reply, "help")
	assert.Contains(t, reply, "bye")
	assert.Contains(t, reply, "db.save")
	assert.Contains(t, reply, "saves the store")
}

func TestServe_OverTCP(t *testing.T) {
	c := New("Channel presence observer", time.Minute, nil)
	called := false
	c.Register("db", "save", "", "saves the store", func(string) (string, error) {
		called = true
		return "saved", nil
	})

	require.NoError(t, c.Start("127.0.0.1:0"))
	defer c.Stop()

	conn, err := net.Dial("tcp", c.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("db.save\nbye\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	out, err := io.ReadAll(conn)
	require.NoError(t, err, "server closes the connection after bye")

	s := string(out)
	assert.Contains(t, s, "Channel presence observer says hello!")
	assert.Contains(t, s, "> ")
	assert.Contains(t, s, "saved")
	assert.Contains(t, s, "Goodbye!")
	assert.True(t, called)
}

func TestServe_UnknownOperationKeepsConnection(t *testing.T) {
	c := New("test", time.Minute, nil)
	require.NoError(t, c.Start("127.0.0.1:0"))
	defer c.Stop()

	conn, err := net.Dial("tcp", c.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("nope\nbye\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	out, err := io.ReadAll(conn)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "error: unknown operation")
	assert.Contains(t, s, "Goodbye!")
	assert.Equal(t, 2, strings.Count(s, "> "), "one prompt per command read")
}
