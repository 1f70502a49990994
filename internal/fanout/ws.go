package fanout

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	// The map client is served from anywhere; the data is public.
	CheckOrigin: func(*http.Request) bool { return true },
}

// ServeWS upgrades the request and streams JSON frames for the scope until
// either side hangs up. Client messages are read and discarded; the read
// pump only exists to notice the close.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, scope Scope) {
	h.serveWebsocket(w, r, scope, JSONCodec{}, websocket.TextMessage)
}

// ServeScopeWS is the downstream scope-protocol variant: msgpack frames as
// binary messages.
func (h *Hub) ServeScopeWS(w http.ResponseWriter, r *http.Request, facility string) {
	h.serveWebsocket(w, r, Scope{Kind: ScopeProto, Facility: facility}, MsgpackCodec{}, websocket.BinaryMessage)
}

func (h *Hub) serveWebsocket(w http.ResponseWriter, r *http.Request, scope Scope, codec Codec, msgType int) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("fanout: ws upgrade failed", "error", err)
		return
	}
	sub := h.Subscribe(scope, codec)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		h.Unsubscribe(sub)
		conn.Close()
	}()

	for {
		select {
		case <-done:
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame, ok := <-sub.Out():
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(msgType, frame); err != nil {
				return
			}
		}
	}
}

// ServeNDJSON streams newline-delimited JSON frames over plain HTTP for
// consumers that don't speak WebSocket.
func (h *Hub) ServeNDJSON(w http.ResponseWriter, r *http.Request, scope Scope) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	sub := h.Subscribe(scope, JSONCodec{})
	defer h.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-sub.Out():
			if !ok {
				return
			}
			if _, err := w.Write(append(frame, '\n')); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
