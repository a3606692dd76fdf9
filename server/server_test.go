package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus/hooks/test"
)

// wireMessage is what a client sees for both responses and broadcasts.
type wireMessage struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func (m wireMessage) code(t *testing.T) string {
	t.Helper()
	var p struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		t.Fatalf("payload %s: %v", m.Payload, err)
	}
	return p.Code
}

type recordingSink struct {
	mu     sync.Mutex
	events []TagEvent
}

func (s *recordingSink) Record(ctx context.Context, ev TagEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// startServer serves cfg on a loopback port with a reader over a mock Type 2
// tag and returns the websocket URL.
func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	reader, _ := newTestReader(t)
	logger, _ := test.NewNullLogger()
	cfg.Reader = reader
	cfg.Logger = logger

	s := New(cfg)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(l)
	t.Cleanup(s.Stop)
	return s, "ws://" + l.Addr().String() + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type typ arrives and returns it.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func sendRequest(t *testing.T, conn *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	req := map[string]any{"type": typ}
	if id != "" {
		req["id"] = id
	}
	if payload != nil {
		req["payload"] = payload
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatal(err)
	}
}

func TestHealthCheck(t *testing.T) {
	s := New(Config{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["timestamp"] == "" {
		t.Errorf("body = %v", body)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != CORSAllowOrigin {
		t.Errorf("CORS origin = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/health", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	reader, _ := newTestReader(t)
	reader.Poll(context.Background())
	logger, _ := test.NewNullLogger()
	s := New(Config{Reader: reader, Logger: logger})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Version      string       `json:"version"`
		Uptime       string       `json:"uptime"`
		Clients      int          `json:"clients"`
		MessageTypes []string     `json:"messageTypes"`
		Reader       ReaderStatus `json:"reader"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Version == "" || body.Uptime == "" {
		t.Errorf("version = %q, uptime = %q", body.Version, body.Uptime)
	}
	want := []string{"clean", "erase", "format", "setField", "write"}
	if strings.Join(body.MessageTypes, ",") != strings.Join(want, ",") {
		t.Errorf("messageTypes = %v, want %v", body.MessageTypes, want)
	}
	if !body.Reader.TagPresent || body.Reader.LastTag == nil {
		t.Errorf("reader = %+v, want a present tag", body.Reader)
	}
}

func TestWebSocket_TagDataAndWrite(t *testing.T) {
	sink := &recordingSink{}
	_, url := startServer(t, Config{Sink: sink})
	conn := dial(t, url)

	first := readUntil(t, conn, WSMessageTypeTagData)
	var ev TagEvent
	if err := json.Unmarshal(first.Payload, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.UID != type2Target.Identity.UID() {
		t.Errorf("tagData uid = %s", ev.UID)
	}

	sendRequest(t, conn, "w1", WSMessageTypeWrite, WriteRequest{
		Records: []WriteRecord{{Type: "text", Content: "hello"}},
	})
	resp := readUntil(t, conn, "writeResponse")
	if resp.ID != "w1" || !resp.Success {
		t.Fatalf("writeResponse = %+v", resp)
	}

	// The poll loop re-reads the tag after the write.
	deadline := time.Now().Add(2 * time.Second)
	for {
		msg := readUntil(t, conn, WSMessageTypeTagData)
		json.Unmarshal(msg.Payload, &ev)
		if ev.Text == "hello" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("written text never broadcast")
		}
	}
	if sink.count() == 0 {
		t.Error("sink recorded no events")
	}
}

func TestWebSocket_Errors(t *testing.T) {
	_, url := startServer(t, Config{})
	conn := dial(t, url)

	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	msg := readUntil(t, conn, WSMessageTypeError)
	if msg.Success || msg.code(t) != ErrCodeParse {
		t.Errorf("parse error response = %+v", msg)
	}

	sendRequest(t, conn, "", "teleport", nil)
	msg = readUntil(t, conn, WSMessageTypeError)
	if msg.code(t) != ErrCodeUnknownType {
		t.Errorf("unknown type code = %s", msg.code(t))
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		t.Errorf("generated request id %q is not a UUID: %v", msg.ID, err)
	}

	sendRequest(t, conn, "w2", WSMessageTypeWrite, map[string]any{"records": []any{}})
	msg = readUntil(t, conn, "writeResponse")
	if msg.Success || msg.code(t) != ErrCodeInvalidPayload {
		t.Errorf("empty write response = %+v", msg)
	}
}

func TestWebSocket_FormatType2(t *testing.T) {
	_, url := startServer(t, Config{})
	conn := dial(t, url)
	readUntil(t, conn, WSMessageTypeTagData)

	sendRequest(t, conn, "f1", WSMessageTypeFormat, nil)
	msg := readUntil(t, conn, "formatResponse")
	if msg.Success || msg.code(t) != "NOT_SUPPORTED" || msg.Error == "" {
		t.Errorf("formatResponse = %+v", msg)
	}
}

func TestWebSocket_SetField(t *testing.T) {
	_, url := startServer(t, Config{})
	conn := dial(t, url)

	sendRequest(t, conn, "s1", WSMessageTypeSetField, SetFieldRequest{On: false})
	msg := readUntil(t, conn, "setFieldResponse")
	if !msg.Success {
		t.Fatalf("setFieldResponse = %+v", msg)
	}
	var p SetFieldRequest
	json.Unmarshal(msg.Payload, &p)
	if p.On {
		t.Error("payload reports field on")
	}
}

func TestWebSocket_APISecret(t *testing.T) {
	_, url := startServer(t, Config{APISecret: "s3cret"})

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() without secret succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}

	dial(t, url+"?secret=s3cret")
}

func TestServer_StopDisconnectsClients(t *testing.T) {
	s, url := startServer(t, Config{})
	conn := dial(t, url)
	readUntil(t, conn, WSMessageTypeTagData)

	s.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if n := s.ClientCount(); n != 0 {
		t.Errorf("ClientCount() = %d after Stop", n)
	}
}
