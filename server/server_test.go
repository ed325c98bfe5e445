package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	orchestrator "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/contract"
	dialoguex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/dialogue"
	statex "github.com/tanpawarit/Chative-Dining-Orchestrator/agent/state"
)

type turnCall struct {
	sessionID string
	text      string
}

type fakeTurns struct {
	mu      sync.Mutex
	calls   []turnCall
	results []orchestrator.TurnResult
	err     error
	state   *statex.ConversationState
}

func (f *fakeTurns) ProcessTurn(ctx context.Context, sessionID string, text string) (orchestrator.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, turnCall{sessionID: sessionID, text: text})
	if f.err != nil {
		return orchestrator.TurnResult{}, f.err
	}
	if len(f.results) == 0 {
		return orchestrator.TurnResult{SessionID: sessionID, Stage: statex.StageLocation, Message: "Where are you?"}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	res.SessionID = sessionID
	return res, nil
}

func (f *fakeTurns) GetState(ctx context.Context, sessionID string) (*statex.ConversationState, error) {
	if f.state == nil || f.state.ID != sessionID {
		return nil, fmt.Errorf("%w: session_id=%s", statex.ErrStateNotFound, sessionID)
	}
	return f.state.Clone(), nil
}

func (f *fakeTurns) snapshot() []turnCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]turnCall(nil), f.calls...)
}

func newTestServer(t *testing.T, turns TurnProcessor) *Server {
	t.Helper()
	srv, err := New(turns,
		WithGatherer(prometheus.NewRegistry()),
		WithSessionIDs(func() string { return "minted-id" }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeTurns{})
	w := doRequest(srv, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %q", body["status"])
	}
}

func TestPostTurnMintsSessionID(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	srv := newTestServer(t, turns)

	w := doRequest(srv, http.MethodPost, "/v1/turns", `{"message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var res orchestrator.TurnResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.SessionID != "minted-id" || res.Stage != statex.StageLocation {
		t.Fatalf("unexpected result: %+v", res)
	}
	if calls := turns.snapshot(); len(calls) != 1 || calls[0] != (turnCall{sessionID: "minted-id", text: "hi"}) {
		t.Fatalf("unexpected calls: %+v", calls)
	}
}

func TestPostTurnErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		err  error
		want int
	}{
		{name: "bad json", body: `{"message":`, want: http.StatusBadRequest},
		{name: "unknown field", body: `{"text":"hi"}`, want: http.StatusBadRequest},
		{name: "validation", body: `{"session_id":"s1","message":" "}`, err: orchestrator.ErrInvalidMessage, want: http.StatusBadRequest},
		{name: "store failure", body: `{"session_id":"s1","message":"hi"}`, err: errors.New("redis down"), want: http.StatusInternalServerError},
		{name: "timeout", body: `{"session_id":"s1","message":"hi"}`, err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, &fakeTurns{err: tc.err})
			w := doRequest(srv, http.MethodPost, "/v1/turns", tc.body)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if tc.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "redis") {
				t.Fatalf("internal error details leaked: %s", w.Body.String())
			}
		})
	}
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	st := statex.NewConversationState("s1", time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC))
	srv := newTestServer(t, &fakeTurns{state: st})

	w := doRequest(srv, http.MethodGet, "/v1/sessions/s1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got statex.ConversationState
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "s1" || got.Stage != statex.StageInit {
		t.Fatalf("unexpected state: %+v", got)
	}

	w = doRequest(srv, http.MethodGet, "/v1/sessions/nobody", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_turns_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv, err := New(&fakeTurns{}, WithGatherer(reg))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	w := doRequest(srv, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "test_turns_total 1") {
		t.Fatalf("unexpected metrics response %d: %s", w.Code, w.Body.String())
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &fakeTurns{})
	w := doRequest(srv, http.MethodGet, "/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestNewRequiresProcessor(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil processor")
	}
}

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) wsReply {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply wsReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	return reply
}

func TestWebsocketAutoContinue(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{results: []orchestrator.TurnResult{
		{
			Stage:     statex.StageDiscovery,
			Message:   "Let me look.",
			Directive: dialoguex.Directive{Action: dialoguex.ActionDiscover, AutoContinue: true, FastPath: true},
		},
		{
			Stage:     statex.StageSelection,
			Message:   "Here are three places.",
			Directive: dialoguex.Directive{Action: dialoguex.ActionPresent},
		},
	}}
	conn := dialWS(t, newTestServer(t, turns), "?session_id=ws-1")

	if err := conn.WriteJSON(wsMessage{Message: "completely exhausted"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := readReply(t, conn)
	if first.Type != "turn" || first.Stage != statex.StageDiscovery || !first.Directive.AutoContinue {
		t.Fatalf("unexpected first reply: %+v", first)
	}
	second := readReply(t, conn)
	if second.Stage != statex.StageSelection || second.SessionID != "ws-1" {
		t.Fatalf("unexpected second reply: %+v", second)
	}

	calls := turns.snapshot()
	if len(calls) != 2 || calls[1].text != dialoguex.ContinueUtterance {
		t.Fatalf("expected an automatic follow-up turn, got %+v", calls)
	}
}

func TestWebsocketManualContinue(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{results: []orchestrator.TurnResult{
		{Stage: statex.StageDiscovery, Message: "Let me look.", Directive: dialoguex.Directive{AutoContinue: true}},
	}}
	conn := dialWS(t, newTestServer(t, turns), "?auto_continue=false")

	if err := conn.WriteJSON(wsMessage{Message: "thai"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readReply(t, conn)
	if reply.SessionID != "minted-id" || reply.Stage != statex.StageDiscovery {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if reply := readReply(t, conn); reply.Type != "error" {
		t.Fatalf("expected error reply, got %+v", reply)
	}

	if calls := turns.snapshot(); len(calls) != 1 {
		t.Fatalf("expected no automatic follow-up, got %+v", calls)
	}
}

func TestWebsocketTurnError(t *testing.T) {
	t.Parallel()

	conn := dialWS(t, newTestServer(t, &fakeTurns{err: contractx.ErrValidation}), "?session_id=ws-err")
	if err := conn.WriteJSON(wsMessage{Message: ""}); err != nil {
		t.Fatalf("write: %v", err)
	}
	reply := readReply(t, conn)
	if reply.Type != "error" || reply.SessionID != "ws-err" || reply.Error == "" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
