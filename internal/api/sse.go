package api

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/voicedesk/internal/models"
)

// statusEvent is sent when a conversation's status or end time changes.
type statusEvent struct {
	Status  models.ConversationStatus `json:"status"`
	EndedAt *time.Time                `json:"endedAt"`
}

// handleEvents streams status and message events for one conversation by
// polling storage. The stream closes once the conversation has ended.
func handleEvents(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		conv, err := s.store.GetConversation(ctx, id)
		if err != nil {
			s.respondError(c, "events", err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", conv)
		c.Writer.Flush()

		// Messages already present are part of the snapshot the client can
		// fetch; only later ones are streamed.
		seen := make(map[string]bool)
		if msgs, err := s.store.GetMessages(ctx, id); err == nil {
			for _, m := range msgs {
				seen[m.ID] = true
			}
		}
		last := statusEvent{Status: conv.Status, EndedAt: conv.EndedAt}
		if conv.Ended() {
			return
		}

		ticker := time.NewTicker(s.poll)
		heartbeat := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.streams.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				msgs, err := s.store.GetMessages(ctx, id)
				if err != nil {
					s.log.Warn().Err(err).Str("conversation", id).Msg("sse poll messages")
					continue
				}
				for i := range msgs {
					if seen[msgs[i].ID] {
						continue
					}
					seen[msgs[i].ID] = true
					writeSSE(c.Writer, "message", msgs[i])
				}

				cur, err := s.store.GetConversation(ctx, id)
				if err != nil {
					s.log.Warn().Err(err).Str("conversation", id).Msg("sse poll conversation")
					c.Writer.Flush()
					continue
				}
				now := statusEvent{Status: cur.Status, EndedAt: cur.EndedAt}
				if now.Status != last.Status || (now.EndedAt == nil) != (last.EndedAt == nil) {
					writeSSE(c.Writer, "status", now)
					last = now
				}
				c.Writer.Flush()
				if cur.Ended() {
					return
				}
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
