package server

import (
	"net/http"
	"sync"

	apkcontext "github.com/apkforge/apkforge/pkg/context"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from arbitrary origins in front of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleBuildWS is the WebSocket variant of the trigger endpoint: the
// client sends the build request as its first text message and then only
// reads JSON events until the connection closes.
func (s *Server) handleBuildWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var req types.BuildRequest
	if err := conn.ReadJSON(&req); err != nil {
		conn.WriteJSON(types.ResultEvent(types.Result{Success: false, Error: "invalid request message"}))
		conn.Close()
		return
	}
	if err := req.Validate(); err != nil {
		conn.WriteJSON(types.ResultEvent(types.Result{Success: false, Error: err.Error()}))
		conn.Close()
		return
	}

	ctx := apkcontext.Enrich(r.Context(), "build-ws", r.Header.Get("X-Request-ID"))

	pub := &wsPublisher{conn: conn}
	if _, err := s.builds.Run(ctx, req, pub, s.origin(r)); err != nil && s.logger != nil {
		s.logger.Error("Build failed",
			append(tracingLogFields(ctx), logger.WithField("error", err))...)
	}
}

// wsPublisher pushes events as JSON messages over a websocket connection
type wsPublisher struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// Publish implements interfaces.Publisher
func (p *wsPublisher) Publish(event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return websocket.ErrCloseSent
	}
	return p.conn.WriteJSON(event)
}

// Close implements interfaces.Publisher
func (p *wsPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return p.conn.Close()
}
