package api

import (
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/log"
)

const (
	eventState = "state"
	eventPing  = "ping"
)

// Stream serves a collection as Server-Sent Events. Every connection owns its cache,
// which is released when the client goes away.
func (h *CollectionHandlers) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	coll, err := h.Registry.Bind(ctx, c.Param("name"))
	if err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}
	defer coll.Dispose()

	current, views, stop := coll.Watch()
	defer stop()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var seq uint64

	writeState := func(view live.View) {
		seq++
		c.Render(-1, sse.Event{Id: strconv.FormatUint(seq, 10), Event: eventState, Data: view})
		c.Writer.Flush()
	}

	writeState(current)

	heartbeat := time.NewTicker(h.Config.heartbeat())
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "stream client disconnected", log.Int("events", int(seq)))
			return
		case view, ok := <-views:
			if !ok {
				return
			}

			writeState(view)
		case <-heartbeat.C:
			c.Render(-1, sse.Event{Event: eventPing, Data: time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}
