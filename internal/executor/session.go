package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

const (
	// HandshakeTimeout bounds the WebSocket upgrade
	HandshakeTimeout = 45 * time.Second
	// WriteTimeout bounds a single frame write
	WriteTimeout = 10 * time.Second

	sendQueueSize = 64
)

// Headers gorilla/websocket generates itself and rejects when supplied
var reservedHandshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
}

// SessionOptions configures a WebSocket session
type SessionOptions struct {
	Compiler *compiler.Compiler
	Store    *parser.Store
	Logger   *slog.Logger
}

type commandKind int

const (
	cmdSend commandKind = iota
	cmdClose
)

type command struct {
	kind commandKind
	tmpl *types.RequestTemplate
}

// connEvent reports that the reader or writer of connection gen stopped
type connEvent struct {
	gen int
	err error
}

type frame struct {
	messageType int
	data        []byte
}

// Session is the single persistent WebSocket connection of the application.
// One actor goroutine owns the state machine and the connection; callers
// interact only through Send and Close. Everything that happens, failures
// included, is appended to a shared log.
type Session struct {
	compiler *compiler.Compiler
	store    *parser.Store
	logger   *slog.Logger

	cmds   chan command
	events chan connEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.RWMutex
	state   types.WsState
	log     []types.WsMessage
	lastErr error
	updates chan struct{}
}

// NewSession creates a session in the Uninitialized state and starts its actor
func NewSession(opts SessionOptions) *Session {
	if opts.Compiler == nil {
		opts.Compiler = compiler.New(nil)
	}
	if opts.Store == nil {
		opts.Store = parser.NewStore(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		compiler: opts.Compiler,
		store:    opts.Store,
		logger:   opts.Logger,
		cmds:     make(chan command, sendQueueSize),
		events:   make(chan connEvent, 4),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    types.WsUninitialized,
		updates:  make(chan struct{}, 1),
	}
	go s.run()
	return s
}

// Send connects if the session is not open, then sends the template's body
// as one frame. An empty body only connects.
func (s *Session) Send(tmpl *types.RequestTemplate) {
	s.enqueue(command{kind: cmdSend, tmpl: tmpl.Clone()})
}

// Close closes the connection. The next Send reconnects from scratch.
func (s *Session) Close() {
	s.enqueue(command{kind: cmdClose})
}

func (s *Session) enqueue(cmd command) {
	select {
	case s.cmds <- cmd:
	case <-s.ctx.Done():
	}
}

// Shutdown stops the actor and closes any open connection
func (s *Session) Shutdown() {
	s.cancel()
	<-s.done
}

// State returns the current lifecycle state
func (s *Session) State() types.WsState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError returns the error that last closed the session, if any
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Log returns a copy of the message log
func (s *Session) Log() []types.WsMessage {
	return s.LogSince(0)
}

// LogSince returns the log entries from index n on
func (s *Session) LogSince(n int) []types.WsMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(s.log) {
		return nil
	}
	out := make([]types.WsMessage, len(s.log)-n)
	copy(out, s.log[n:])
	return out
}

// Updates is signalled (coalesced) whenever the log or state changes
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

func (s *Session) setState(state types.WsState, err error) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()

	if prev != state {
		s.logger.Debug("websocket state changed", "from", prev.String(), "to", state.String())
	}
	s.notify()
}

func (s *Session) append(direction types.WsDirection, msgType, content string, size int) {
	s.mu.Lock()
	s.log = append(s.log, types.WsMessage{
		Direction: direction,
		Type:      msgType,
		Content:   content,
		Size:      size,
		Timestamp: time.Now(),
	})
	s.mu.Unlock()
	s.notify()
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// run is the actor loop. Only this goroutine changes state or touches conn.
func (s *Session) run() {
	defer close(s.done)

	var conn *wsConn
	gen := 0

	closeConn := func() {
		if conn != nil {
			conn.shutdown()
			conn = nil
		}
	}
	handleEvent := func(ev connEvent) {
		if conn == nil || ev.gen != gen {
			return // stale event from an earlier connection
		}
		closeConn()
		s.setState(types.WsClosed, ev.err)
	}

	for {
		select {
		case <-s.ctx.Done():
			closeConn()
			return

		case ev := <-s.events:
			handleEvent(ev)

		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdClose:
				if conn != nil {
					closeConn()
					s.append(types.WsSystem, "system", "Connection closed", 0)
				}
				if st := s.State(); st != types.WsUninitialized {
					s.setState(types.WsClosed, nil)
				}

			case cmdSend:
				// a connection that already failed must not swallow this send
				select {
				case ev := <-s.events:
					handleEvent(ev)
				default:
				}

				req, err := s.compiler.Compile(s.ctx, cmd.tmpl, s.store.Snapshot())
				if err != nil {
					s.append(types.WsError, "system", fmt.Sprintf("Failed to build message: %v", err), 0)
					continue
				}

				if conn == nil {
					gen++
					conn, err = s.connect(cmd.tmpl, req, gen)
					if err != nil {
						s.append(types.WsError, "system", err.Error(), 0)
						s.setState(types.WsClosed, err)
						continue
					}
				}

				if len(req.Body) == 0 {
					continue
				}
				msgType := websocket.TextMessage
				if cmd.tmpl.EffectiveRawKind() == types.RawBinaryFile {
					msgType = websocket.BinaryMessage
				}
				select {
				case conn.out <- frame{messageType: msgType, data: req.Body}:
				case <-conn.written:
					s.append(types.WsError, "system", "Failed to send: connection closed", 0)
				}
			}
		}
	}
}

// connect dials and starts the reader and writer. It reports Connecting,
// then Open on success.
func (s *Session) connect(tmpl *types.RequestTemplate, req *compiler.CompiledRequest, gen int) (*wsConn, error) {
	s.setState(types.WsConnecting, nil)

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: HandshakeTimeout,
	}
	if tmpl.TLS != nil && strings.HasPrefix(req.URL, "wss://") {
		tlsCfg, err := BuildTLSConfig(tmpl.TLS)
		if err != nil {
			return nil, fmt.Errorf("TLS configuration error: %w", err)
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, resp, err := dialer.DialContext(s.ctx, req.URL, HandshakeHeaders(tmpl, req))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("Connection failed (HTTP %d): %w", resp.StatusCode, NewTransportError(err))
		}
		return nil, fmt.Errorf("Connection failed: %w", NewTransportError(err))
	}

	c := &wsConn{
		ws:       conn,
		gen:      gen,
		out:      make(chan frame, sendQueueSize),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
		written:  make(chan struct{}),
	}
	s.append(types.WsSystem, "system", fmt.Sprintf("Connected to %s", req.URL), 0)
	s.setState(types.WsOpen, nil)

	go s.readLoop(c)
	go s.writeLoop(c)
	return c, nil
}

// HandshakeHeaders returns the resolved custom headers to send with the upgrade
// request. Headers the dialer generates are dropped, as is a Content-Type the
// user did not set explicitly.
func HandshakeHeaders(tmpl *types.RequestTemplate, req *compiler.CompiledRequest) http.Header {
	explicitContentType := false
	for _, h := range tmpl.Headers {
		if h.Active() && strings.EqualFold(h.Key, "Content-Type") {
			explicitContentType = true
		}
	}

	headers := http.Header{}
	for _, h := range req.Headers {
		key := http.CanonicalHeaderKey(h.Key)
		if reservedHandshakeHeaders[key] {
			continue
		}
		if key == "Content-Type" && !explicitContentType {
			continue
		}
		headers.Add(key, h.Value)
	}
	return headers
}

func (s *Session) report(c *wsConn, err error) {
	select {
	case s.events <- connEvent{gen: c.gen, err: err}:
	case <-s.ctx.Done():
	}
}

// readLoop is the only reader of the socket
func (s *Session) readLoop(c *wsConn) {
	defer close(c.readDone)
	for {
		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			if IsCloseError(err) {
				s.append(types.WsError, "close", "Connection closed by server", 0)
			} else {
				s.append(types.WsError, "system", fmt.Sprintf("Receive error: %v", err), 0)
			}
			s.report(c, err)
			return
		}

		content := string(message)
		if messageType == websocket.BinaryMessage {
			content = fmt.Sprintf("<binary %d bytes>", len(message))
		}
		s.append(types.WsReceived, messageTypeName(messageType), content, len(message))
	}
}

// writeLoop is the only writer of the socket
func (s *Session) writeLoop(c *wsConn) {
	defer close(c.written)
	for {
		select {
		case f := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(WriteTimeout))
			if err := c.ws.WriteMessage(f.messageType, f.data); err != nil {
				if c.closing.Load() {
					return
				}
				s.append(types.WsError, "system", fmt.Sprintf("Failed to send: %v", err), 0)
				s.report(c, err)
				return
			}
			content := string(f.data)
			if f.messageType == websocket.BinaryMessage {
				content = fmt.Sprintf("<binary %d bytes>", len(f.data))
			}
			s.append(types.WsSent, messageTypeName(f.messageType), content, len(f.data))

		case <-c.readDone:
			// reader already reported the failure
			return

		case <-c.stop:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// wsConn is one established connection and its two goroutines
type wsConn struct {
	ws       *websocket.Conn
	gen      int
	out      chan frame
	stop     chan struct{}
	readDone chan struct{}
	written  chan struct{}
	closing  atomic.Bool
	once     sync.Once
}

// shutdown stops the writer (sending a close frame if it can) and closes the socket
func (c *wsConn) shutdown() {
	c.once.Do(func() {
		c.closing.Store(true)
		close(c.stop)
		select {
		case <-c.written:
		case <-time.After(2 * time.Second):
		}
		_ = c.ws.Close()
	})
}

func messageTypeName(messageType int) string {
	switch messageType {
	case websocket.TextMessage:
		return "text"
	case websocket.BinaryMessage:
		return "binary"
	case websocket.PingMessage:
		return "ping"
	case websocket.PongMessage:
		return "pong"
	case websocket.CloseMessage:
		return "close"
	default:
		return "unknown"
	}
}

// IsCloseError reports whether err is a normal WebSocket close
func IsCloseError(err error) bool {
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure
}
