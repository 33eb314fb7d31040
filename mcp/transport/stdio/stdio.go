// Package stdio implements MCP transports over newline-delimited JSON-RPC
// on standard input/output. The client transport launches the server process
// itself; the server transport serves the current process's stdio.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpagent/mcp/transport"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpagent/mcp/transport", "stdio")

// max line size for a single JSON-RPC message, large tool outputs included
const maxScanTokenSize = 10 * 1024 * 1024

// ClientTransport launches a tool-server subprocess and exchanges
// newline-delimited JSON-RPC messages over its stdio.
type ClientTransport struct {
	command string
	args    []string
	env     []string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	writeMu        sync.Mutex
	started        bool
}

// NewClientTransport creates a transport that will launch the given command.
func NewClientTransport(command string, args ...string) *ClientTransport {
	return &ClientTransport{
		command: command,
		args:    args,
	}
}

// WithEnv appends extra environment entries for the subprocess.
func (t *ClientTransport) WithEnv(env ...string) *ClientTransport {
	t.env = append(t.env, env...)
	return t
}

// Start implements Transport.Start
func (t *ClientTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("stdio transport already started")
	}

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Env = append(os.Environ(), t.env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errors.Wrap(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to launch %q", t.command)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout
	t.started = true

	go t.readLoop(ctx, stdout)
	go t.drainStderr(stderr)

	return nil
}

func (t *ClientTransport) readLoop(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := transport.ParseMessage(line)
		if err != nil {
			t.mu.RLock()
			handler := t.errorHandler
			t.mu.RUnlock()
			if handler != nil {
				handler(errors.Wrap(err, "failed to parse message"))
			}
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}

	t.mu.RLock()
	closeHandler := t.closeHandler
	t.mu.RUnlock()
	if closeHandler != nil {
		closeHandler()
	}
}

func (t *ClientTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.KV(xlog.DEBUG,
			"command", t.command,
			"stderr", scanner.Text(),
		)
	}
}

// Send implements Transport.Send
func (t *ClientTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.stdin == nil {
		return errors.New("stdio transport is not started")
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close implements Transport.Close
func (t *ClientTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil
	}
	t.started = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		// closing stdin asks the server to exit, reap it
		_ = t.cmd.Wait()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ClientTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ClientTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ClientTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}

// ServerTransport serves newline-delimited JSON-RPC over this process's
// stdin/stdout. Used by tool-server binaries.
type ServerTransport struct {
	in  io.Reader
	out io.Writer

	messageHandler func(ctx context.Context, message *transport.BaseJsonRpcMessage)
	errorHandler   func(error)
	closeHandler   func()
	mu             sync.RWMutex
	writeMu        sync.Mutex
}

// NewServerTransport creates a transport bound to os.Stdin and os.Stdout.
func NewServerTransport() *ServerTransport {
	return &ServerTransport{
		in:  os.Stdin,
		out: os.Stdout,
	}
}

// WithIO overrides the reader and writer, for tests.
func (t *ServerTransport) WithIO(in io.Reader, out io.Writer) *ServerTransport {
	t.in = in
	t.out = out
	return t
}

// Start implements Transport.Start. It blocks until stdin is closed or the
// context is cancelled.
func (t *ServerTransport) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		msg, err := transport.ParseMessage(line)
		if err != nil {
			t.mu.RLock()
			handler := t.errorHandler
			t.mu.RUnlock()
			if handler != nil {
				handler(errors.Wrap(err, "failed to parse message"))
			}
			continue
		}

		t.mu.RLock()
		handler := t.messageHandler
		t.mu.RUnlock()
		if handler != nil {
			handler(ctx, msg)
		}
	}

	t.mu.RLock()
	closeHandler := t.closeHandler
	t.mu.RUnlock()
	if closeHandler != nil {
		closeHandler()
	}
	return scanner.Err()
}

// Send implements Transport.Send
func (t *ServerTransport) Send(ctx context.Context, message *transport.BaseJsonRpcMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal message")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(data, '\n')); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close implements Transport.Close
func (t *ServerTransport) Close() error {
	if t.closeHandler != nil {
		t.closeHandler()
	}
	return nil
}

// SetMessageHandler implements Transport.SetMessageHandler
func (t *ServerTransport) SetMessageHandler(handler func(ctx context.Context, message *transport.BaseJsonRpcMessage)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messageHandler = handler
}

// SetErrorHandler implements Transport.SetErrorHandler
func (t *ServerTransport) SetErrorHandler(handler func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.errorHandler = handler
}

// SetCloseHandler implements Transport.SetCloseHandler
func (t *ServerTransport) SetCloseHandler(handler func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeHandler = handler
}
