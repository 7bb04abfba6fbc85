package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pratham2994/OmniCompiler/internal/logging"
	"github.com/Pratham2994/OmniCompiler/internal/supervisor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is an outer concern; the session id is the
		// capability.
		return true
	},
}

// wsConn adapts a gorilla connection to the supervisor's Conn. Writes are
// serialized under a mutex because pumps and the command loop both send.
// Malformed client frames are answered with an err frame here and never
// reach the supervisor.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsConn) Send(f supervisor.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Receive() (supervisor.ClientMessage, error) {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			return supervisor.ClientMessage{}, err
		}
		var msg supervisor.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			_ = w.Send(supervisor.Frame{"type": "err", "data": "invalid msg: " + string(data)})
			continue
		}
		return msg, nil
	}
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}

// attachSession upgrades the request and hands the stream to the
// supervisor, which owns it until termination.
func (a *API) attachSession(c *gin.Context) {
	sid := c.Param("sid")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	a.Supervisor.Attach(c.Request.Context(), sid, &wsConn{conn: ws})
}

// wsEcho is a connectivity diagnostic: echoes {type:"in"} frames back as
// {type:"out"}.
func (a *API) wsEcho(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	_ = ws.WriteJSON(gin.H{"type": "welcome", "msg": "WS connected. Send {'type':'in','data':'hello'}"})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "in" {
			_ = ws.WriteJSON(gin.H{"type": "err", "data": "unknown message: " + string(data)})
			continue
		}
		_ = ws.WriteJSON(gin.H{"type": "out", "data": "echo: " + msg.Data})
	}
}
