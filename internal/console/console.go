// Package console implements the line-oriented TCP remote-control protocol:
// a prompt, a scoped operation registry, and an idle timeout. One client is
// served at a time.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClose is returned by an operation to ask the console to close the
// current connection after sending the reply.
var ErrClose = errors.New("close console connection")

// Operation is one invokable console command.
type Operation struct {
	Scope  string // optional dotted prefix, e.g. "db"
	Name   string
	Params string // human-readable parameter hint, empty for none
	Desc   string
	Run    func(arg string) (string, error)
}

// FullName is the dotted name the operation is invoked by.
func (o Operation) FullName() string {
	if o.Scope == "" {
		return o.Name
	}
	return o.Scope + "." + o.Name
}

// Console is the TCP control surface. Register every operation before Start.
type Console struct {
	hello   string
	timeout time.Duration
	log     *zap.Logger

	ops []Operation

	mu      sync.Mutex
	ln      net.Listener
	current net.Conn
	stopped bool
	wg      sync.WaitGroup
}

// New creates a console greeting clients with hello and disconnecting them
// after timeout of inactivity.
func New(hello string, timeout time.Duration, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Console{hello: hello, timeout: timeout, log: logger}
	c.Register("", "help", "", "prints this help message", c.opHelp)
	c.Register("", "bye", "", "closes this connection", opBye)
	return c
}

// Register adds an operation. Not safe to call after Start.
func (c *Console) Register(scope, name, params, desc string, run func(string) (string, error)) {
	c.ops = append(c.ops, Operation{Scope: scope, Name: name, Params: params, Desc: desc, Run: run})
}

// Start binds addr and begins serving connections in the background.
func (c *Console) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("start console: %w", err)
	}
	c.mu.Lock()
	c.ln = ln
	c.mu.Unlock()

	c.wg.Add(1)
	go c.listen()

	c.log.Info("started console", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound listen address, handy when started on port 0.
func (c *Console) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ln.Addr()
}

// Stop closes the listener and any active connection, then waits for the
// serve loop to exit.
func (c *Console) Stop() {
	c.log.Info("stopping console")
	c.mu.Lock()
	c.stopped = true
	if c.ln != nil {
		c.ln.Close()
	}
	if c.current != nil {
		c.current.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Console) listen() {
	defer c.wg.Done()
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			if c.isStopped() {
				return
			}
			continue
		}
		c.setCurrent(conn)
		c.serve(conn)
		c.setCurrent(nil)
	}
}

func (c *Console) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Console) setCurrent(conn net.Conn) {
	c.mu.Lock()
	c.current = conn
	c.mu.Unlock()
}

func (c *Console) serve(conn net.Conn) {
	defer conn.Close()

	session := uuid.Must(uuid.NewV7()).String()
	c.log.Info("console accepted connection",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("session", session))

	fmt.Fprintf(conn, "%s says hello!\n", c.hello)
	fmt.Fprint(conn, "Type \"help\" to get a list of available operations.\n")

	reader := bufio.NewReader(conn)
	for {
		if _, err := fmt.Fprint(conn, "> "); err != nil {
			break
		}

		conn.SetReadDeadline(time.Now().Add(c.timeout))
		line, err := reader.ReadString('\n')
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				fmt.Fprintf(conn, "\nTimed out after %s.\n", c.timeout)
			}
			break
		}

		c.log.Info("console received command",
			zap.String("command", strings.TrimSpace(line)),
			zap.String("session", session))

		reply, err := c.dispatch(line)
		if err != nil && !errors.Is(err, ErrClose) {
			reply = "error: " + err.Error()
		}
		if reply != "" {
			fmt.Fprint(conn, reply)
			if !strings.HasSuffix(reply, "\n") {
				fmt.Fprint(conn, "\n")
			}
		}
		if errors.Is(err, ErrClose) {
			break
		}
	}

	c.log.Info("console connection closed", zap.String("session", session))
}

// dispatch resolves and runs one command line.
func (c *Console) dispatch(line string) (string, error) {
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return "", nil
	}

	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	for _, op := range c.ops {
		if op.FullName() != name {
			continue
		}
		if op.Params == "" && arg != "" {
			return "", fmt.Errorf("operation %q expects no arguments", name)
		}
		return op.Run(arg)
	}
	return "", fmt.Errorf("unknown operation: %q", name)
}

func (c *Console) opHelp(string) (string, error) {
	type row struct{ usage, desc string }
	rows := make([]row, 0, len(c.ops))
	width := 0
	for _, op := range c.ops {
		usage := "  " + op.FullName()
		if op.Params != "" {
			usage += " " + op.Params
		}
		if len(usage) > width {
			width = len(usage)
		}
		rows = append(rows, row{usage, op.Desc})
	}

	var b strings.Builder
	b.WriteString("Operations:\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s%s\n", width+2, r.usage, r.desc)
	}
	return b.String(), nil
}

func opBye(string) (string, error) {
	return "Goodbye!", ErrClose
}
