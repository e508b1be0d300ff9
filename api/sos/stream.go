package sos

import (
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kilianp07/sosdispatch/core/events"
)

// stream pushes alert events as server-sent events. ?alert_id= narrows the
// stream to one alert.
func (h *handler) stream(c *gin.Context) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)
	alertID := c.Query("alert_id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("connected", gin.H{"type": "connected"})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !matches(ev, alertID) {
				continue
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		}
	}
}

// ws streams alert events as JSON text frames.
func (h *handler) ws(c *gin.Context) {
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)
	alertID := c.Query("alert_id")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warnf("websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")
	// Clients only listen; CloseRead handles their control frames.
	ctx := conn.CloseRead(c.Request.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if !matches(ev, alertID) {
				continue
			}
			if err := wsjson.Write(ctx, conn, ev); err != nil {
				if websocket.CloseStatus(err) == -1 {
					h.log.Debugf("websocket write: %v", err)
				}
				return
			}
		}
	}
}

func matches(ev events.AlertEvent, alertID string) bool {
	return alertID == "" || ev.Alert.ID == alertID
}
