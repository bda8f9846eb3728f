package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/scrollzoom/pkg/engine"
)

type inlineLoop struct {
	mu sync.Mutex
}

func (l *inlineLoop) Send(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}

type fakeEngine struct {
	status      engine.Status
	allowEnable bool
	dotDash     bool
	observers   map[int]func(engine.Activation)
	next        int
}

func (f *fakeEngine) Status() engine.Status { return f.status }

func (f *fakeEngine) SetEnabled(enable bool) bool {
	if enable && !f.allowEnable {
		return false
	}
	f.status.Enabled = enable
	return true
}

func (f *fakeEngine) SetDotDashEnabled(enable bool) bool {
	if enable && !f.dotDash {
		return false
	}
	f.status.DotDashEnabled = enable
	return true
}

func (f *fakeEngine) Subscribe(fn func(engine.Activation)) func() {
	id := f.next
	f.next++
	f.observers[id] = fn
	return func() { delete(f.observers, id) }
}

type harness struct {
	eng      *fakeEngine
	loop     *inlineLoop
	srv      *Server
	http     *httptest.Server
	client   *Client
	shutdown chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		eng: &fakeEngine{
			allowEnable: true,
			status:      engine.Status{Trigger: "⌥"},
			observers:   make(map[int]func(engine.Activation)),
		},
		loop:     &inlineLoop{},
		shutdown: make(chan struct{}, 1),
	}
	srv, err := New(Options{
		Addr:     "0",
		Engine:   h.eng,
		Loop:     h.loop,
		RunID:    "run-1",
		Version:  "test",
		Shutdown: func() { h.shutdown <- struct{}{} },
	})
	require.NoError(t, err)
	h.srv = srv
	h.http = httptest.NewServer(srv.Handler())
	t.Cleanup(h.http.Close)

	h.client, err = NewClient(strings.TrimPrefix(h.http.URL, "http://"))
	require.NoError(t, err)
	return h
}

func (h *harness) fire(a engine.Activation) {
	h.loop.Send(func() {
		for _, fn := range h.eng.observers {
			fn(a)
		}
	})
}

func (h *harness) post(t *testing.T, body string) JSONRPCResponse {
	t.Helper()
	resp, err := http.Post(h.http.URL+"/rpc", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out JSONRPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNormalizeAddr(t *testing.T) {
	addr, err := NormalizeAddr("7923")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7923", addr)

	addr, err = NormalizeAddr("localhost:1")
	require.NoError(t, err)
	assert.Equal(t, "localhost:1", addr)

	_, err = NormalizeAddr("")
	assert.Error(t, err)
	_, err = NormalizeAddr("port")
	assert.Error(t, err)
}

func TestNewRequiresEngineAndLoop(t *testing.T) {
	_, err := New(Options{Addr: "1"})
	assert.Error(t, err)
}

func TestStatusOverRPC(t *testing.T) {
	h := newHarness(t)
	h.loop.Send(func() { h.eng.status.Exclusive = true })

	st, err := h.client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", st.RunID)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, "⌥", st.Trigger)
	assert.True(t, st.Exclusive)
	assert.NotZero(t, st.PID)
}

func TestSetEnabledOverRPC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.SetEnabled(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{OK: true, Enabled: true}, res)

	res, err = h.client.SetEnabled(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{OK: true, Enabled: false}, res)

	h.loop.Send(func() { h.eng.allowEnable = false })
	res, err = h.client.SetEnabled(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{OK: false, Enabled: false}, res)
}

func TestSetDotDashEnabledOverRPC(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.client.SetDotDashEnabled(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.OK, "no multitouch source")

	h.loop.Send(func() { h.eng.dotDash = true })
	res, err = h.client.SetDotDashEnabled(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, SwitchResult{OK: true, Enabled: true}, res)
}

func TestJSONRPCValidation(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"invalid json", `{`, ErrCodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"status","id":1}`, ErrCodeInvalidRequest},
		{"missing id", `{"jsonrpc":"2.0","method":"status"}`, ErrCodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, ErrCodeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"zoom","id":1}`, ErrCodeMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","method":"set_enabled","id":1}`, ErrCodeInvalidParams},
		{"missing enabled", `{"jsonrpc":"2.0","method":"set_enabled","params":{},"id":1}`, ErrCodeInvalidParams},
		{"wrong type", `{"jsonrpc":"2.0","method":"set_enabled","params":{"enabled":"yes"},"id":1}`, ErrCodeInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.post(t, tc.body)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.code, resp.Error.Code)
			assert.Equal(t, "2.0", resp.JSONRPC)
		})
	}
}

func TestRPCRejectsGet(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.http.URL + "/rpc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClientSurfacesRPCErrors(t *testing.T) {
	h := newHarness(t)
	err := h.client.Call(context.Background(), "nope", nil, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrCodeMethodNotFound, rpcErr.Code)
}

func TestClientReportsAgentNotRunning(t *testing.T) {
	h := newHarness(t)
	h.http.Close()
	_, err := h.client.Status(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestShutdownMethodInvokesCallback(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.client.Call(context.Background(), "server.shutdown", nil, nil))
	select {
	case <-h.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func dialFeed(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	h.srv.Subscribe()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.http.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.srv.feed.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestFeedPushesActivations(t *testing.T) {
	h := newHarness(t)
	conn := dialFeed(t, h)

	h.fire(engine.Activation{DeviceID: 5, Active: true})
	h.fire(engine.Activation{DeviceID: 5, Active: false})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got []engine.Activation
	for i := 0; i < 2; i++ {
		var a engine.Activation
		require.NoError(t, conn.ReadJSON(&a))
		got = append(got, a)
	}
	assert.Equal(t, []engine.Activation{{DeviceID: 5, Active: true}, {DeviceID: 5, Active: false}}, got)
}

func TestFeedRejectsForeignOrigin(t *testing.T) {
	h := newHarness(t)
	header := http.Header{"Origin": []string{"http://example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.http.URL, "http")+"/ws", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCloseDisconnectsFeedAndUnsubscribes(t *testing.T) {
	h := newHarness(t)
	conn := dialFeed(t, h)
	require.Len(t, h.eng.observers, 1)

	require.NoError(t, h.srv.Close(context.Background()))
	assert.Empty(t, h.eng.observers)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestStartServesOnLoopback(t *testing.T) {
	eng := &fakeEngine{observers: make(map[int]func(engine.Activation))}
	srv, err := New(Options{Addr: "127.0.0.1:0", Engine: eng, Loop: &inlineLoop{}})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Close(context.Background())

	client, err := NewClient(srv.Addr())
	require.NoError(t, err)
	st, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Enabled)
	assert.Len(t, eng.observers, 1)
}
