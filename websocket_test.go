package relay_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func dialWS(t *testing.T, r *relay.Router, path string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	return string(data)
}

func TestWebSocket_echo(t *testing.T) {
	t.Parallel()

	closed := make(chan int, 1)
	r := relay.New()
	r.WS("/echo/{room}", func(ws *relay.WSConfig) {
		ws.OnConnect = func(s *relay.WSSession) error {
			return s.Send("joined " + s.PathParam("room") + " as " + s.Query("name"))
		}
		ws.OnMessage = func(s *relay.WSSession, msg string) error {
			return s.Send(s.PathParam("room") + ": " + msg)
		}
		ws.OnBinary = func(s *relay.WSSession, data []byte) error {
			return s.SendBytes(append([]byte("bin:"), data...))
		}
		ws.OnClose = func(_ *relay.WSSession, code int, _ string) {
			closed <- code
		}
	})

	conn := dialWS(t, r, "/echo/lobby?name=ada")

	assert.Equal(t, "joined lobby as ada", readText(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	assert.Equal(t, "lobby: hi", readText(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte{'b', 'i', 'n', ':', 1, 2}, data)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case code := <-closed:
		assert.Equal(t, websocket.CloseNormalClosure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("OnClose was not called")
	}
}

func TestWebSocket_stageOrderAndAttributes(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	r := relay.New()
	r.WSAfter("*", func(ws *relay.WSConfig) {
		ws.OnMessage = func(s *relay.WSSession, _ string) error {
			record("after")
			return s.Send("done")
		}
	})
	r.WSBefore("/chat", func(ws *relay.WSConfig) {
		ws.OnConnect = func(s *relay.WSSession) error {
			s.Set("user", "ada")
			return nil
		}
		ws.OnMessage = func(*relay.WSSession, string) error {
			record("before")
			return nil
		}
	})
	r.WS("/chat", func(ws *relay.WSConfig) {
		ws.OnMessage = func(s *relay.WSSession, msg string) error {
			record("endpoint")
			return s.SendJSON(map[string]string{"user": s.Get("user").(string), "msg": msg})
		}
	})

	conn := dialWS(t, r, "/chat")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))

	assert.JSONEq(t, `{"user":"ada","msg":"hello"}`, readText(t, conn))
	assert.Equal(t, "done", readText(t, conn))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"before", "endpoint", "after"}, order)
}

func TestWebSocket_errorsReachOnError(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	errs := make(chan error, 2)
	r := relay.New()
	r.WS("/ws", func(ws *relay.WSConfig) {
		ws.OnMessage = func(_ *relay.WSSession, msg string) error {
			if msg == "panic" {
				panic("handler exploded")
			}
			return errBoom
		}
		ws.OnError = func(s *relay.WSSession, err error) {
			errs <- err
			_ = s.Send("error handled")
		}
	})

	conn := dialWS(t, r, "/ws")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	assert.Equal(t, "error handled", readText(t, conn))
	require.ErrorIs(t, <-errs, errBoom)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("panic")))
	assert.Equal(t, "error handled", readText(t, conn))
	var pe *relay.PanicError
	require.ErrorAs(t, <-errs, &pe)
	assert.Equal(t, "handler exploded", pe.Value)
}

func TestWebSocket_serverClose(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.WS("/ws", func(ws *relay.WSConfig) {
		ws.OnConnect = func(s *relay.WSSession) error {
			_, err := uuid.Parse(s.ID())
			if err != nil {
				return err
			}
			return s.Close(websocket.ClosePolicyViolation, "not allowed")
		}
	})

	conn := dialWS(t, r, "/ws")

	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Equal(t, "not allowed", ce.Text)
}

func TestWebSocket_plainHTTPRequest(t *testing.T) {
	t.Parallel()

	r := relay.New()
	r.WS("/ws", func(*relay.WSConfig) {})

	rec := serve(t, r, http.MethodGet, "/ws", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocket_originCheck(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithWebSocketOriginCheck(func(req *http.Request) bool {
		return req.Header.Get("Origin") == "https://trusted.example"
	}))
	r.WS("/ws", func(*relay.WSConfig) {})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	_ = resp.Body.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://trusted.example"}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	_ = conn.Close()
}
