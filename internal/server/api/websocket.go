package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/log"
)

type websocketUpgrader = websocket.Upgrader

const websocketWriteWait = 10 * time.Second

func newUpgrader(origins []string) websocket.Upgrader {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	switch {
	case slices.Contains(origins, "*"):
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	case len(origins) > 0:
		upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}
	}

	return upgrader
}

// Message is one WebSocket frame. The server sends "state" and "error",
// the client may send "refresh".
type Message struct {
	Type  string     `json:"type"`
	Data  *live.View `json:"data,omitempty"`
	Error string     `json:"error,omitempty"`
}

const (
	messageState   = "state"
	messageError   = "error"
	messageRefresh = "refresh"
)

// WebSocket serves a collection over a WebSocket. Like Stream, every connection owns its cache.
func (h *CollectionHandlers) WebSocket(c *gin.Context) {
	name := c.Param("name")
	if _, ok := collections.Lookup(name); !ok {
		JSONError(c, http.StatusNotFound, collections.ErrUnknownCollection)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn(c.Request.Context(), "websocket upgrade failed", log.Cause(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	coll, err := h.Registry.Bind(ctx, name)
	if err != nil {
		_ = writeMessage(conn, Message{Type: messageError, Error: err.Error()})
		return
	}
	defer coll.Dispose()

	current, views, stop := coll.Watch()
	defer stop()

	refreshes := make(chan struct{}, 1)

	go readPump(ctx, cancel, conn, refreshes)

	if err := writeMessage(conn, Message{Type: messageState, Data: &current}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.Config.heartbeat())
	defer heartbeat.Stop()

	// At most one refresh runs at a time; pending is nil while it does, and a
	// request arriving meanwhile waits in refreshes.
	var (
		pending     <-chan struct{} = refreshes
		refreshDone                 = make(chan error, 1)
	)

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(websocketWriteWait))

			return
		case view, ok := <-views:
			if !ok {
				return
			}

			if err := writeMessage(conn, Message{Type: messageState, Data: &view}); err != nil {
				log.Debug(ctx, "websocket write failed", log.Cause(err))
				return
			}
		case <-pending:
			pending = nil

			go func() {
				refreshDone <- coll.Refresh(ctx)
			}()
		case err := <-refreshDone:
			pending = refreshes

			if err != nil && ctx.Err() == nil {
				if err := writeMessage(conn, Message{Type: messageError, Error: err.Error()}); err != nil {
					return
				}
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(websocketWriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump owns the read side of conn and cancels ctx when the client leaves.
func readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, refreshes chan<- struct{}) {
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn(ctx, "websocket read failed", log.Cause(err))
			}

			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug(ctx, "ignoring malformed websocket message", log.Cause(err))
			continue
		}

		if msg.Type == messageRefresh {
			select {
			case refreshes <- struct{}{}:
			default:
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg Message) error {
	if err := conn.SetWriteDeadline(time.Now().Add(websocketWriteWait)); err != nil {
		return err
	}

	return conn.WriteJSON(msg)
}
