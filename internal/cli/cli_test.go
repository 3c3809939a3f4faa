package cli

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chanwatch/chanwatch/internal/config"
	"github.com/chanwatch/chanwatch/internal/event"
	"github.com/chanwatch/chanwatch/internal/store"
)

func writeTestConfig(t *testing.T, dir, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dbPath = filepath.Join(dir, "database.json")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf("database: %s\n%s", dbPath, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))
	return cfgPath, dbPath
}

// seedDatabase writes a small snapshot with one tombstoned entry.
func seedDatabase(t *testing.T, dbPath string) {
	t.Helper()
	st := store.New(dbPath, time.Minute, zap.NewNop())
	require.NoError(t, st.Submit(event.Event{Type: event.TypeCreate, Guild: 1, Channel: 10}))
	require.NoError(t, st.Submit(event.Event{Type: event.TypeJoin, Guild: 1, Channel: 10, User: 100}))
	require.NoError(t, st.Submit(event.Event{
		Type: event.TypeComment, Guild: 1, Channel: 10, User: 100,
		Message: 5000, MessageChannel: 20, Content: "agenda",
	}))
	st.DeleteComment(5000)
	st.SetChannelName(10, "standup")
	require.NoError(t, st.Save())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestDumpCommand(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t, t.TempDir(), "")
	seedDatabase(t, dbPath)

	out, err := execute(t, "dump", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"events"`)
	assert.Contains(t, out, `"join"`)
	assert.Contains(t, out, `"cache_eventc": 3`)
}

func TestCompactCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath, dbPath := writeTestConfig(t, dir, "")
	seedDatabase(t, dbPath)

	out, err := execute(t, "compact", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "compacted 3 entries into 2 events")

	reloaded := store.New(dbPath, time.Minute, zap.NewNop())
	require.NoError(t, reloaded.Load())
	assert.Equal(t, 2, reloaded.Len())
	assert.FileExists(t, dbPath+".old")
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath, dbPath := writeTestConfig(t, dir, "")
	seedDatabase(t, dbPath)
	outPath := filepath.Join(dir, "standup.html")

	out, err := execute(t, "report", "-c", cfgPath, "--channel", "10", "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+outPath)

	html, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "<!DOCTYPE html>")
	assert.Contains(t, string(html), "standup")
}

func TestReportCommand_RequiresChannel(t *testing.T) {
	cfgPath, _ := writeTestConfig(t, t.TempDir(), "")
	_, err := execute(t, "report", "-c", cfgPath)
	require.Error(t, err)
}

func TestMissingConfigIsCommandError(t *testing.T) {
	_, err := execute(t, "dump", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigOps(t *testing.T) {
	cfg := config.Default()
	cfg.Token = "secret-token"
	params := &reportParams{cfg: cfg, interval: 5 * time.Minute, minUsers: 2}

	out, err := opConfigShow(params)
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "secret-token")

	out, err = opConfigGet(params, "token")
	require.NoError(t, err)
	assert.Equal(t, "<redacted>", out)

	out, err = opConfigGet(params, "meeting_userc")
	require.NoError(t, err)
	assert.Equal(t, "2", out)

	_, err = opConfigGet(params, "nonsense")
	require.Error(t, err)

	out, err = opConfigSet(params, "meeting_interval 10m")
	require.NoError(t, err)
	assert.Equal(t, "meeting_interval = 10m", out)
	assert.Equal(t, 10*time.Minute, params.interval)

	_, err = opConfigSet(params, "meeting_userc 3")
	require.NoError(t, err)
	assert.Equal(t, 3, params.minUsers)

	_, err = opConfigSet(params, "meeting_userc zero")
	require.Error(t, err)

	_, err = opConfigSet(params, "token hijacked")
	require.Error(t, err)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunCommand_ServesConsoleUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	extra := fmt.Sprintf("console_host: 127.0.0.1\nconsole_port: %d\nautosave: 1h\n", port)
	cfgPath, dbPath := writeTestConfig(t, dir, extra)
	seedDatabase(t, dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"run", "-c", cfgPath})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var conn net.Conn
	var err error
	require.Eventually(t, func() bool {
		conn, err = net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	conn.Close()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run command did not stop after cancellation")
	}
	assert.Contains(t, buf.String(), "Observer started")
}
