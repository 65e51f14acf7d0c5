package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bjaus/relay/pathmatch"
)

// WSHandler configures the callbacks of a WebSocket route. It runs once per
// connection, before the upgrade.
type WSHandler func(ws *WSConfig)

// WSConfig holds the callbacks of one WebSocket handler. Unset callbacks are
// skipped. Callbacks returning an error, or panicking, are reported to
// OnError.
type WSConfig struct {
	OnConnect func(s *WSSession) error
	OnMessage func(s *WSSession, msg string) error
	OnBinary  func(s *WSSession, data []byte) error
	OnClose   func(s *WSSession, code int, reason string)
	OnError   func(s *WSSession, err error)
}

// WSSession is one upgraded connection. Send methods are safe for
// concurrent use.
type WSSession struct {
	id     string
	conn   *websocket.Conn
	req    *http.Request
	params pathmatch.Params
	logger *slog.Logger
	cfg    WebSocketConfig

	writeMu sync.Mutex
	attrsMu sync.Mutex
	attrs   map[any]any
}

// ID returns the session's unique identifier.
func (s *WSSession) ID() string { return s.id }

// Request returns the upgrade request.
func (s *WSSession) Request() *http.Request { return s.req }

// Context returns the upgrade request's context.
func (s *WSSession) Context() context.Context { return s.req.Context() }

// PathParam returns a path parameter of the WebSocket endpoint.
func (s *WSSession) PathParam(name string) string { return s.params.Get(name) }

// Query returns the first query parameter value for name.
func (s *WSSession) Query(name string) string { return s.req.URL.Query().Get(name) }

// Send writes a text message.
func (s *WSSession) Send(msg string) error {
	return s.write(websocket.TextMessage, []byte(msg))
}

// SendBytes writes a binary message.
func (s *WSSession) SendBytes(data []byte) error {
	return s.write(websocket.BinaryMessage, data)
}

// SendJSON writes v as a JSON text message.
func (s *WSSession) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason. The read loop ends when
// the peer acknowledges.
func (s *WSSession) Close(code int, reason string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, s.writeDeadline())
}

// Set stores a session attribute.
func (s *WSSession) Set(key, value any) {
	s.attrsMu.Lock()
	defer s.attrsMu.Unlock()
	if s.attrs == nil {
		s.attrs = make(map[any]any)
	}
	s.attrs[key] = value
}

// Get returns a session attribute, or nil.
func (s *WSSession) Get(key any) any {
	s.attrsMu.Lock()
	defer s.attrsMu.Unlock()
	return s.attrs[key]
}

func (s *WSSession) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(s.writeDeadline()); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *WSSession) ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, s.writeDeadline())
}

// writeDeadline returns the zero time, meaning no deadline, when WriteWait
// is unset.
func (s *WSSession) writeDeadline() time.Time {
	if s.cfg.WriteWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.cfg.WriteWait)
}

func isWebSocketUpgrade(req *http.Request) bool {
	return websocket.IsWebSocketUpgrade(req)
}

// serveWS upgrades the connection and dispatches frames to the callbacks of
// the matching WS_BEFORE, WS and WS_AFTER handlers, in that order.
func (r *Router) serveWS(w http.ResponseWriter, req *http.Request, snap *snapshot, path string) {
	endpoint := snap.findEndpoint(StageWSEndpoint, "", path)

	var entries []*entry
	entries = append(entries, snap.findEntries(StageWSBefore, "", path)...)
	entries = append(entries, endpoint)
	entries = append(entries, snap.findEntries(StageWSAfter, "", path)...)

	configs := make([]*WSConfig, 0, len(entries))
	for _, e := range entries {
		cfg := &WSConfig{}
		e.ws(cfg)
		configs = append(configs, cfg)
	}

	wsCfg := r.cfg.WebSocket
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsCfg.ReadBufferSize,
		WriteBufferSize: wsCfg.WriteBufferSize,
		CheckOrigin:     r.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		r.logger.Debug("websocket upgrade failed", "err", err, "path", req.URL.Path)
		return
	}

	params, _ := endpoint.pattern.Params(path, snap.opts)
	id := uuid.NewString()
	s := &WSSession{
		id:     id,
		conn:   conn,
		req:    req,
		params: params,
		logger: r.logger.With(slog.String("session_id", id)),
		cfg:    wsCfg,
	}

	r.metrics.wsOpened()
	defer r.metrics.wsClosed()

	(&wsDispatcher{session: s, configs: configs}).run()
}

type wsDispatcher struct {
	session *WSSession
	configs []*WSConfig
}

func (d *wsDispatcher) run() {
	s := d.session
	defer func() {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("close websocket", "err", err)
		}
	}()

	if s.cfg.ReadLimit > 0 {
		s.conn.SetReadLimit(s.cfg.ReadLimit)
	}

	done := make(chan struct{})
	defer close(done)
	if s.cfg.PingInterval > 0 && s.cfg.PongWait > 0 {
		//nolint:errcheck,gosec // a failed deadline surfaces on the next read
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
		})
		go d.keepalive(done)
	}

	started := time.Now()
	s.logger.Debug("websocket connected", "path", s.req.URL.Path)

	d.each(func(cfg *WSConfig) error {
		if cfg.OnConnect == nil {
			return nil
		}
		return cfg.OnConnect(s)
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			code, reason := websocket.CloseAbnormalClosure, ""
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code, reason = ce.Code, ce.Text
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				d.reportError(err)
			}
			d.each(func(cfg *WSConfig) error {
				if cfg.OnClose != nil {
					cfg.OnClose(s, code, reason)
				}
				return nil
			})
			s.logger.Debug("websocket closed",
				"code", code,
				"duration", time.Since(started),
			)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			msg := string(data)
			d.each(func(cfg *WSConfig) error {
				if cfg.OnMessage == nil {
					return nil
				}
				return cfg.OnMessage(s, msg)
			})
		case websocket.BinaryMessage:
			d.each(func(cfg *WSConfig) error {
				if cfg.OnBinary == nil {
					return nil
				}
				return cfg.OnBinary(s, data)
			})
		}
	}
}

// each calls fn for every config in order. Errors and panics go to OnError.
func (d *wsDispatcher) each(fn func(cfg *WSConfig) error) {
	for _, cfg := range d.configs {
		if err := d.guard(cfg, fn); err != nil {
			d.reportError(err)
		}
	}
}

func (d *wsDispatcher) guard(cfg *WSConfig, fn func(cfg *WSConfig) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()
	return fn(cfg)
}

func (d *wsDispatcher) reportError(err error) {
	handled := false
	for _, cfg := range d.configs {
		if cfg.OnError == nil {
			continue
		}
		handled = true
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					d.session.logger.Error("websocket error handler panicked", "panic", rec)
				}
			}()
			cfg.OnError(d.session, err)
		}()
	}
	if !handled {
		d.session.logger.Error("uncaught websocket error", "err", err)
	}
}

func (d *wsDispatcher) keepalive(done <-chan struct{}) {
	ticker := time.NewTicker(d.session.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := d.session.ping(); err != nil {
				d.session.logger.Debug("websocket ping failed", "err", err)
				return
			}
		}
	}
}
