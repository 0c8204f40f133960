package executor

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/studiowebux/restbench/internal/compiler"
	"github.com/studiowebux/restbench/internal/parser"
	"github.com/studiowebux/restbench/internal/types"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// echoServer echoes every frame back. Connections are counted.
func echoServer(t *testing.T, onUpgrade func(r *http.Request)) (*httptest.Server, *int32) {
	t.Helper()
	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if onUpgrade != nil {
			onUpgrade(r)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		atomic.AddInt32(&connections, 1)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
	}))
	return server, &connections
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func hasEntry(s *Session, direction types.WsDirection, content string) bool {
	for _, m := range s.Log() {
		if m.Direction == direction && strings.Contains(m.Content, content) {
			return true
		}
	}
	return false
}

func wsTemplate(url, body string) *types.RequestTemplate {
	return &types.RequestTemplate{Name: "ws", Method: types.MethodWS, URL: url, BodyRaw: body}
}

func TestSession_SendAndEcho(t *testing.T) {
	server, connections := echoServer(t, nil)
	defer server.Close()

	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	if s.State() != types.WsUninitialized {
		t.Fatalf("Expected Uninitialized, got: %s", s.State())
	}

	s.Send(wsTemplate(wsURL(server), "hello"))
	waitFor(t, "echo", func() bool { return hasEntry(s, types.WsReceived, "hello") })

	if s.State() != types.WsOpen {
		t.Errorf("Expected Open, got: %s", s.State())
	}
	if !hasEntry(s, types.WsSent, "hello") || !hasEntry(s, types.WsSystem, "Connected to") {
		t.Errorf("Expected connect and sent entries, got: %+v", s.Log())
	}

	s.Send(wsTemplate(wsURL(server), "again"))
	waitFor(t, "second echo", func() bool { return hasEntry(s, types.WsReceived, "again") })
	if got := atomic.LoadInt32(connections); got != 1 {
		t.Errorf("Expected the connection to be reused, got %d connections", got)
	}

	log := s.Log()
	for i := 1; i < len(log); i++ {
		if log[i].Timestamp.Before(log[i-1].Timestamp) {
			t.Errorf("Expected log in chronological order at %d", i)
		}
	}
	if tail := s.LogSince(len(log) - 1); len(tail) != 1 {
		t.Errorf("Expected one entry from LogSince, got: %d", len(tail))
	}
}

func TestSession_HandshakeHeaders(t *testing.T) {
	var mu sync.Mutex
	var token, contentType string
	server, _ := echoServer(t, func(r *http.Request) {
		mu.Lock()
		token = r.Header.Get("X-Token")
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
	})
	defer server.Close()

	s := NewSession(SessionOptions{Store: parser.NewStore([]types.Variable{{Key: "token", Value: "abc", Enabled: true}})})
	defer s.Shutdown()

	tmpl := wsTemplate(wsURL(server), "")
	tmpl.Headers = []types.Pair{{Key: "X-Token", Value: "{{token}}"}}
	s.Send(tmpl)
	waitFor(t, "open", func() bool { return s.State() == types.WsOpen })

	mu.Lock()
	defer mu.Unlock()
	if token != "abc" {
		t.Errorf("Expected resolved header, got: %q", token)
	}
	if contentType != "" {
		t.Errorf("Expected no implicit Content-Type on the handshake, got: %q", contentType)
	}

	for _, m := range s.Log() {
		if m.Direction == types.WsSent {
			t.Errorf("Expected an empty body to send no frame, got: %+v", m)
		}
	}
}

func TestSession_CloseThenReconnect(t *testing.T) {
	server, connections := echoServer(t, nil)
	defer server.Close()

	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	s.Send(wsTemplate(wsURL(server), "first"))
	waitFor(t, "first echo", func() bool { return hasEntry(s, types.WsReceived, "first") })

	s.Close()
	waitFor(t, "closed", func() bool { return s.State() == types.WsClosed })
	if !hasEntry(s, types.WsSystem, "Connection closed") {
		t.Errorf("Expected a close entry, got: %+v", s.Log())
	}

	s.Send(wsTemplate(wsURL(server), "second"))
	waitFor(t, "second echo", func() bool { return hasEntry(s, types.WsReceived, "second") })
	if got := atomic.LoadInt32(connections); got != 2 {
		t.Errorf("Expected a fresh connection, got %d connections", got)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(server)
	server.Close()

	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	s.Send(wsTemplate(url, "hello"))
	waitFor(t, "closed", func() bool { return s.State() == types.WsClosed })

	if s.LastError() == nil {
		t.Error("Expected a last error")
	}
	if !hasEntry(s, types.WsError, "Connection failed") {
		t.Errorf("Expected a connection error entry, got: %+v", s.Log())
	}
	if hasEntry(s, types.WsSent, "hello") {
		t.Error("Expected nothing to be sent")
	}
}

func TestSession_CompileFailure(t *testing.T) {
	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	s.Send(wsTemplate("ftp://example.com/ws", "hello"))
	waitFor(t, "error entry", func() bool { return hasEntry(s, types.WsError, "Failed to build message") })
	if s.State() != types.WsUninitialized {
		t.Errorf("Expected state to be unchanged, got: %s", s.State())
	}
}

func TestSession_ServerClose(t *testing.T) {
	var connections int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if atomic.AddInt32(&connections, 1) == 1 {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
			time.Sleep(100 * time.Millisecond)
			return
		}
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			_ = conn.WriteMessage(mt, msg)
		}
	}))
	defer server.Close()

	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	s.Send(wsTemplate(wsURL(server), ""))
	waitFor(t, "server close", func() bool { return hasEntry(s, types.WsError, "Connection closed by server") })
	waitFor(t, "closed", func() bool { return s.State() == types.WsClosed })

	s.Send(wsTemplate(wsURL(server), "back"))
	waitFor(t, "echo after reconnect", func() bool { return hasEntry(s, types.WsReceived, "back") })
	if s.State() != types.WsOpen {
		t.Errorf("Expected Open after reconnect, got: %s", s.State())
	}
}

func TestSession_BinaryFrame(t *testing.T) {
	server, _ := echoServer(t, nil)
	defer server.Close()

	path := filepath.Join(t.TempDir(), "payload.bin")
	if err := os.WriteFile(path, []byte{0, 1, 2, 3}, 0644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}

	s := NewSession(SessionOptions{})
	defer s.Shutdown()

	tmpl := wsTemplate(wsURL(server), path)
	tmpl.BodyRawKind = types.RawBinaryFile
	s.Send(tmpl)
	waitFor(t, "binary echo", func() bool { return hasEntry(s, types.WsReceived, "<binary 4 bytes>") })

	for _, m := range s.Log() {
		if m.Direction == types.WsReceived && (m.Type != "binary" || m.Size != 4) {
			t.Errorf("Expected a 4 byte binary entry, got: %+v", m)
		}
	}
}

func TestHandshakeHeaders(t *testing.T) {
	tmpl := &types.RequestTemplate{Headers: []types.Pair{{Key: "content-type", Value: "text/plain"}}}
	req := &compiler.CompiledRequest{Headers: []types.Pair{
		{Key: "content-type", Value: "text/plain"},
		{Key: "Sec-WebSocket-Key", Value: "x"},
		{Key: "Authorization", Value: "Bearer t"},
	}}
	h := HandshakeHeaders(tmpl, req)
	if h.Get("Content-Type") != "text/plain" || h.Get("Authorization") != "Bearer t" {
		t.Errorf("Expected explicit headers to be kept, got: %v", h)
	}
	if h.Get("Sec-WebSocket-Key") != "" {
		t.Errorf("Expected reserved header to be dropped, got: %v", h)
	}
}
