package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser UI is served from a different origin in development.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Handler upgrades the request and pumps client messages into the hub until
// the connection drops.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).Warn("websocket upgrade failed")
			return
		}

		sock := newGorillaSocket(conn)
		id := h.Register(sock)
		conn.SetPongHandler(func(string) error {
			h.Touch(id)
			return nil
		})

		defer h.Deregister(id)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.HandleMessage(id, raw)
		}
	}
}
