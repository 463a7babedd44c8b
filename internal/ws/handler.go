package ws

import (
	"context"
	"io"
	"net/http"

	"github.com/coder/websocket"

	"github.com/DoyleJ11/arena-server/internal/server"
)

// Handler upgrades the request and runs the regular client flow over it.
// Each text frame carries one JSON record.
func Handler(s *server.Server, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			return
		}
		conn.SetReadLimit(server.MaxMessageSize)

		s.ServeConn(r.Context(), &wsConn{conn: conn, remote: r.RemoteAddr})
	}
}

type wsConn struct {
	conn   *websocket.Conn
	remote string
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		// Treat clean close/going-away as end of stream.
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) WriteMessage(ctx context.Context, p []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, p)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "bye")
}

func (c *wsConn) RemoteAddr() string { return c.remote }
