package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// LineTransport carries one JSON-RPC 2.0 message per line over a reader and
// writer, normally stdin and stdout.
//
// Unlike mcp.StdioTransport, a malformed line does not end the session: the
// peer gets a -32700 (or -32600 for well-formed JSON that is not a message)
// and reading continues. Requests other than initialize and ping that arrive
// before the initialize response has been written are answered with -32600
// "server not initialized"; notifications in that window are dropped.
type LineTransport struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// NewLineTransport creates a transport over in and out. If in is an
// io.Closer it is closed when the connection closes, which unblocks a
// pending read.
func NewLineTransport(in io.Reader, out io.Writer) *LineTransport {
	return &LineTransport{in: in, out: out, logger: slog.Default()}
}

// Connect implements mcp.Transport.
func (t *LineTransport) Connect(context.Context) (mcp.Connection, error) {
	c := &lineConn{
		in:     t.in,
		out:    t.out,
		logger: t.logger,
		lines:  make(chan []byte),
		closed: make(chan struct{}),
	}
	go c.readLines()
	return c, nil
}

type lineConn struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	lines   chan []byte
	readErr error // set before lines is closed

	writeMu sync.Mutex

	initMu      sync.Mutex
	initID      *jsonrpc.ID
	initialized bool

	closeOnce sync.Once
	closed    chan struct{}
}

// readLines feeds non-blank lines to Read until the reader fails.
func (c *lineConn) readLines() {
	defer close(c.lines)
	r := bufio.NewReaderSize(c.in, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case c.lines <- trimmed:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// SessionID implements mcp.Connection. A stdio session has no id.
func (c *lineConn) SessionID() string { return "" }

// Read implements mcp.Connection.
func (c *lineConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, io.EOF
		case line, ok := <-c.lines:
			if !ok {
				if c.readErr != nil && !errors.Is(c.readErr, io.EOF) {
					return nil, c.readErr
				}
				return nil, io.EOF
			}
			msg, err := c.decode(ctx, line)
			if err != nil {
				return nil, err
			}
			if msg != nil {
				return msg, nil
			}
		}
	}
}

// decode parses one line. A nil message with a nil error means the line was
// answered or dropped here and reading should continue.
func (c *lineConn) decode(ctx context.Context, line []byte) (jsonrpc.Message, error) {
	if !json.Valid(line) {
		c.logger.Debug("stdio parse error", slog.Int("bytes", len(line)))
		return nil, c.writeError(ctx, recoverID(line), &jsonrpc.Error{
			Code:    jsonrpc.CodeParseError,
			Message: "Parse error",
		})
	}
	if line[0] == '[' {
		return nil, c.writeError(ctx, nullID, &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: "batch requests are not supported",
		})
	}

	msg, err := jsonrpc.DecodeMessage(line)
	if err != nil {
		return nil, c.writeError(ctx, recoverID(line), &jsonrpc.Error{
			Code:    jsonrpc.CodeInvalidRequest,
			Message: fmt.Sprintf("Invalid Request: %v", err),
		})
	}

	req, ok := msg.(*jsonrpc.Request)
	if !ok || c.admit(req) {
		return msg, nil
	}
	if !req.IsCall() {
		c.logger.Debug("dropped notification before initialize", slog.String("method", req.Method))
		return nil, nil
	}
	resp := &jsonrpc.Response{ID: req.ID, Error: NewNotInitializedError()}
	return nil, c.write(ctx, resp)
}

// admit reports whether req may reach the server in the current phase.
func (c *lineConn) admit(req *jsonrpc.Request) bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized {
		return true
	}
	switch req.Method {
	case "initialize":
		if req.IsCall() {
			id := req.ID
			c.initID = &id
		}
		return true
	case "ping":
		return true
	default:
		return false
	}
}

// Write implements mcp.Connection. A successful response to the pending
// initialize request opens the session before it is written, so a request the
// client sends as soon as it reads the response is admitted.
func (c *lineConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	if resp, ok := msg.(*jsonrpc.Response); ok && resp.Error == nil {
		c.initMu.Lock()
		if c.initID != nil && *c.initID == resp.ID {
			c.initialized = true
			c.initID = nil
		}
		c.initMu.Unlock()
	}
	return c.write(ctx, msg)
}

func (c *lineConn) write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	return c.writeLine(ctx, data)
}

// errorLine is written by hand because an unknown id must appear as null,
// which jsonrpc.Response omits.
type errorLine struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   *jsonrpc.Error  `json:"error"`
}

var nullID = json.RawMessage("null")

func (c *lineConn) writeError(ctx context.Context, id json.RawMessage, e *jsonrpc.Error) error {
	data, err := json.Marshal(errorLine{JSONRPC: "2.0", ID: id, Error: e})
	if err != nil {
		return fmt.Errorf("encoding error response: %w", err)
	}
	return c.writeLine(ctx, data)
}

func (c *lineConn) writeLine(ctx context.Context, data []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.closed:
		return mcp.ErrConnectionClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.out.Write(append(data, '\n'))
	return err
}

// Close implements mcp.Connection. It is safe to call more than once.
func (c *lineConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		if closer, ok := c.in.(io.Closer); ok {
			err = closer.Close()
		}
	})
	return err
}

var idPattern = regexp.MustCompile(`"id"\s*:\s*("(?:[^"\\]|\\.)*"|-?\d+)`)

// recoverID extracts a string or integer id from a line that may not parse,
// falling back to null.
func recoverID(line []byte) json.RawMessage {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if json.Unmarshal(line, &probe) == nil && validID(probe.ID) {
		return probe.ID
	}
	if m := idPattern.FindSubmatch(line); m != nil && validID(m[1]) {
		return json.RawMessage(m[1])
	}
	return nullID
}

// validID accepts JSON strings and numbers.
func validID(raw []byte) bool {
	if len(raw) == 0 || !json.Valid(raw) {
		return false
	}
	var v any
	if json.Unmarshal(raw, &v) != nil {
		return false
	}
	switch v.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}
