package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/conn"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/outbox"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"go.uber.org/zap"
)

// stubTransport is a controllable transport for API tests.
type stubTransport struct {
	mu       sync.Mutex
	err      error
	notReady bool
	gate     chan struct{}
	sent     int
}

func (s *stubTransport) Send(context.Context, []string, string) error {
	s.mu.Lock()
	err := s.err
	gate := s.gate
	s.sent++
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (s *stubTransport) SendGroup(context.Context, string, string) error {
	s.mu.Lock()
	err := s.err
	gate := s.gate
	s.sent++
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (s *stubTransport) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.notReady
}

type stubAddress string

func (a stubAddress) SelfAddress() string { return string(a) }

type fixture struct {
	handler *Handler
	stub    *stubTransport
	queue   *outbox.Queue
	svc     *outbox.Service
	convs   *conversation.Store
	archive *store.DB
	bus     *bus.Bus
	machine *conn.Machine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	path := filepath.Join(t.TempDir(), "test.db")
	archive, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = archive.Close() })

	stub := &stubTransport{}
	convs := conversation.NewStore()
	b := bus.New()
	machine := conn.NewMachine(b)
	sender := outbox.NewSender(convs, stub, archive, b, logger)
	queue := outbox.NewQueue(sender, logger)
	t.Cleanup(queue.Stop)
	svc := outbox.NewService(convs, queue, stub, archive, b, logger, "me")

	h := NewHandler(Deps{
		Profile:       "default",
		Conversations: convs,
		Outbox:        svc,
		Queue:         queue,
		Archive:       archive,
		Machine:       machine,
		Bus:           b,
		Address:       stubAddress("ADDR123"),
		Logger:        logger,
	})
	return &fixture{
		handler: h, stub: stub, queue: queue, svc: svc,
		convs: convs, archive: archive, bus: b, machine: machine,
	}
}

func newTestServer(t *testing.T) (*fixture, *httptest.Server) {
	t.Helper()
	f := newFixture(t)
	srv := httptest.NewServer(f.handler.Router())
	t.Cleanup(srv.Close)
	return f, srv
}

func waitDrained(t *testing.T, q *outbox.Queue) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if q.InFlight() == 0 {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("queue still has %d jobs in flight", q.InFlight())
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatal(err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	decodeBody(t, resp, &body)
	return body.Error.Code
}

func TestStatusEndpoint(t *testing.T) {
	f, srv := newTestServer(t)
	if err := f.machine.Transition(conn.Connecting); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got StatusResponse
	decodeBody(t, resp, &got)

	if got.Profile != "default" {
		t.Errorf("profile = %q, want default", got.Profile)
	}
	if got.State != "CONNECTING" {
		t.Errorf("state = %q, want CONNECTING", got.State)
	}
	if got.Queue.Capacity != outbox.Capacity {
		t.Errorf("capacity = %d, want %d", got.Queue.Capacity, outbox.Capacity)
	}
	if got.Address != "ADDR123" {
		t.Errorf("address = %q, want ADDR123", got.Address)
	}
}

func TestSendEndpoint(t *testing.T) {
	f, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/send", sendRequest{Conversation: "a1b2c3", Content: "hi"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var got sendResponse
	decodeBody(t, resp, &got)
	if got.Ref != 1 || got.Conversation != "a1b2c3" {
		t.Errorf("response = %+v, want ref 1 for a1b2c3", got)
	}

	waitDrained(t, f.queue)

	listResp, err := http.Get(srv.URL + "/v1/conversations/a1b2c3/messages")
	if err != nil {
		t.Fatal(err)
	}
	var msgs messagesResponse
	decodeBody(t, listResp, &msgs)
	if msgs.Count != 1 || msgs.Messages[0].Status != "sent" {
		t.Errorf("messages = %+v, want one sent", msgs)
	}
}

func TestSendValidation(t *testing.T) {
	_, srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/v1/send", sendRequest{Conversation: "a1b2c3"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty content status = %d, want 400", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "bad_request" {
		t.Errorf("code = %q, want bad_request", code)
	}

	resp = postJSON(t, srv.URL+"/v1/send", sendRequest{Content: "hi"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty conversation status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestSendNotConnected(t *testing.T) {
	f, srv := newTestServer(t)
	f.stub.mu.Lock()
	f.stub.notReady = true
	f.stub.mu.Unlock()

	resp := postJSON(t, srv.URL+"/v1/send", sendRequest{Conversation: "a1b2c3", Content: "hi"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "not_connected" {
		t.Errorf("code = %q, want not_connected", code)
	}
}

func TestSendQueueFull(t *testing.T) {
	f, srv := newTestServer(t)
	f.stub.mu.Lock()
	f.stub.gate = make(chan struct{})
	f.stub.mu.Unlock()
	defer close(f.stub.gate)

	for i := 0; i < outbox.Capacity; i++ {
		if _, err := f.svc.Send(conversation.DirectKey("a1b2c3"), fmt.Sprintf("m%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	resp := postJSON(t, srv.URL+"/v1/send", sendRequest{Conversation: "a1b2c3", Content: "overflow"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "queue_full" {
		t.Errorf("code = %q, want queue_full", code)
	}
}

func TestRetryErrorMapping(t *testing.T) {
	f, srv := newTestServer(t)

	// Unknown ref.
	resp := postJSON(t, srv.URL+"/v1/retry", retryRequest{Conversation: "a1b2c3", Ref: 42})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown ref status = %d, want 404", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "invalid_target" {
		t.Errorf("code = %q, want invalid_target", code)
	}

	// Delivered message is not retryable.
	ref, err := f.svc.Send(conversation.DirectKey("a1b2c3"), "ok")
	if err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	resp = postJSON(t, srv.URL+"/v1/retry", retryRequest{Conversation: "a1b2c3", Ref: ref})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("sent message status = %d, want 409", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != "not_retryable" {
		t.Errorf("code = %q, want not_retryable", code)
	}
}

func TestRetryAcceptsFailedMessage(t *testing.T) {
	f, srv := newTestServer(t)
	f.stub.mu.Lock()
	f.stub.err = fmt.Errorf("boom")
	f.stub.mu.Unlock()

	ref, err := f.svc.Send(conversation.DirectKey("a1b2c3"), "will fail")
	if err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	f.stub.mu.Lock()
	f.stub.err = nil
	f.stub.mu.Unlock()

	resp := postJSON(t, srv.URL+"/v1/retry", retryRequest{Conversation: "a1b2c3", Ref: ref})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()
	waitDrained(t, f.queue)

	if got := f.convs.Snapshot(conversation.DirectKey("a1b2c3"))[0].Status; got != conversation.StatusSent {
		t.Errorf("status after retry = %s, want sent", got)
	}
}

func TestMessagesUnknownConversationIsEmpty(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/conversations/nobody/messages")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var msgs messagesResponse
	decodeBody(t, resp, &msgs)
	if msgs.Count != 0 {
		t.Errorf("count = %d, want 0", msgs.Count)
	}
}

func TestMessagesGroupKeyPath(t *testing.T) {
	f, srv := newTestServer(t)
	if _, err := f.svc.Send(conversation.GroupKey("7"), "hi group"); err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	resp, err := http.Get(srv.URL + "/v1/conversations/group:7/messages")
	if err != nil {
		t.Fatal(err)
	}
	var msgs messagesResponse
	decodeBody(t, resp, &msgs)
	if msgs.Count != 1 {
		t.Errorf("count = %d, want 1", msgs.Count)
	}
}

func TestClearEndpoint(t *testing.T) {
	f, srv := newTestServer(t)
	if _, err := f.svc.Send(conversation.DirectKey("a1b2c3"), "bye"); err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/conversations/a1b2c3/messages", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	if got := len(f.convs.Snapshot(conversation.DirectKey("a1b2c3"))); got != 0 {
		t.Errorf("got %d messages after clear, want 0", got)
	}
}

func TestConversationsEndpoint(t *testing.T) {
	f, srv := newTestServer(t)
	if _, err := f.svc.Send(conversation.DirectKey("a1b2c3"), "one"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Send(conversation.GroupKey("7"), "two"); err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	resp, err := http.Get(srv.URL + "/v1/conversations")
	if err != nil {
		t.Fatal(err)
	}
	var got conversationsResponse
	decodeBody(t, resp, &got)
	if got.Count != 2 {
		t.Fatalf("count = %d, want 2", got.Count)
	}
}

func TestSearchEndpoint(t *testing.T) {
	f, srv := newTestServer(t)
	if _, err := f.svc.Send(conversation.DirectKey("a1b2c3"), "the xylophone arrives tomorrow"); err != nil {
		t.Fatal(err)
	}
	waitDrained(t, f.queue)

	resp, err := http.Get(srv.URL + "/v1/search?q=xylophone")
	if err != nil {
		t.Fatal(err)
	}
	var got searchResponse
	decodeBody(t, resp, &got)
	if got.Count != 1 || got.Results[0].Conversation != "a1b2c3" {
		t.Errorf("results = %+v, want one hit in a1b2c3", got)
	}

	// Missing query is a client error.
	resp, err = http.Get(srv.URL + "/v1/search")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()
}
