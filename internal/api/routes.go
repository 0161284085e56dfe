package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/voicedesk/internal/chat"
	"github.com/zulandar/voicedesk/internal/models"
	"github.com/zulandar/voicedesk/internal/notify"
	"github.com/zulandar/voicedesk/internal/provider"
	"github.com/zulandar/voicedesk/internal/storage"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, s *server) {
	router.GET("/healthz", handleHealth(s))

	api := router.Group("/api")

	// Session credentials from the agent platform.
	api.GET("/conversation/signed-url", handleCredential(s, "signedUrl", "Failed to get signed URL", s.creds.SignedURL))
	api.GET("/conversation/token", handleCredential(s, "token", "Failed to get conversation token", s.creds.ConversationToken))

	// Conversations.
	api.POST("/conversations", handleCreateConversation(s))
	api.GET("/conversations", handleListConversations(s))
	api.GET("/conversations/:id", handleGetConversation(s))
	api.PATCH("/conversations/:id/status", handleUpdateStatus(s))
	api.PATCH("/conversations/:id/end", handleEndConversation(s))
	api.GET("/conversations/:id/messages", handleGetMessages(s))
	api.GET("/conversations/:id/events", handleEvents(s))

	// Messages and the text chat fallback.
	api.POST("/messages", handleCreateMessage(s))
	api.POST("/chat", handleChat(s))
}

func handleHealth(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": s.store.Backend()})
	}
}

// mintFunc is a provider call that returns one credential string.
type mintFunc func(ctx context.Context, agentID string) (string, error)

// handleCredential serves the signed-url and token endpoints. Provider
// failures pass the upstream status and text through.
func handleCredential(s *server, key, failure string, mint mintFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID := c.Query("agent_id")
		if agentID == "" {
			agentID = s.defaultAgentID
		}
		if agentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Agent ID is required"})
			return
		}

		value, err := mint(c.Request.Context(), agentID)
		var se *provider.StatusError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{key: value})
		case errors.Is(err, provider.ErrMissingAPIKey):
			c.JSON(http.StatusInternalServerError, gin.H{"message": "ElevenLabs API key not configured"})
		case errors.As(err, &se):
			s.log.Warn().Int("status", se.StatusCode).Str("agent", agentID).Msg(failure)
			c.JSON(se.StatusCode, gin.H{"message": failure + ": " + se.Body})
		default:
			s.internalError(c, key, err)
		}
	}
}

type createConversationRequest struct {
	UserID         *string `json:"userId"`
	AgentID        string  `json:"agentId" binding:"required,max=128"`
	ConnectionType string  `json:"connectionType" binding:"omitempty,oneof=webrtc websocket"`
}

func handleCreateConversation(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		conv, err := s.store.CreateConversation(c.Request.Context(), models.NewConversation{
			UserID:         req.UserID,
			AgentID:        req.AgentID,
			ConnectionType: models.ConnectionType(req.ConnectionType),
		})
		if err != nil {
			s.respondError(c, "create conversation", err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func handleListConversations(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := storage.ConversationFilter{
			AgentID: c.Query("agentId"),
			Limit:   defaultListLimit,
		}
		var errs []fieldError

		if v := c.Query("status"); v != "" {
			st, err := models.ParseConversationStatus(v)
			if err != nil {
				errs = append(errs, fieldError{Field: "status", Rule: "oneof", Message: err.Error()})
			}
			filter.Status = st
		}
		if v := c.Query("active"); v != "" {
			active, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fieldError{Field: "active", Rule: "boolean", Message: "active must be true or false"})
			}
			filter.Active = active
		}
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxListLimit {
				errs = append(errs, fieldError{Field: "limit", Rule: "range", Message: "limit must be between 1 and " + strconv.Itoa(maxListLimit)})
			}
			filter.Limit = n
		}
		if len(errs) > 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "errors": errs})
			return
		}

		convs, err := s.store.ListConversations(c.Request.Context(), filter)
		if err != nil {
			s.respondError(c, "list conversations", err)
			return
		}
		c.JSON(http.StatusOK, convs)
	}
}

func handleGetConversation(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.store.GetConversation(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, "get conversation", err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func handleUpdateStatus(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err != nil && !emptyBody(err) {
			invalidInput(c, err)
			return
		}
		if req.Status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Status is required"})
			return
		}
		status, err := models.ParseConversationStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"message": "Invalid input",
				"errors":  []fieldError{{Field: "status", Rule: "oneof", Message: err.Error()}},
			})
			return
		}

		if err := s.store.UpdateConversationStatus(c.Request.Context(), c.Param("id"), status); err != nil {
			s.respondError(c, "update status", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Status updated successfully"})
	}
}

func handleEndConversation(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		ended, err := s.store.EndConversation(ctx, id)
		if err != nil {
			s.respondError(c, "end conversation", err)
			return
		}
		if ended {
			s.announceEnd(ctx, id)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Conversation ended successfully"})
	}
}

// announceEnd sends the ended notification in the background so a slow
// webhook cannot hold up the response.
func (s *server) announceEnd(ctx context.Context, id string) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", id).Msg("reload ended conversation")
		return
	}
	msgs, err := s.store.GetMessages(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("conversation", id).Msg("count messages")
	}

	evt := notify.Event{
		Kind:           notify.KindConversationEnded,
		ConversationID: conv.ID,
		AgentID:        conv.AgentID,
		ConnectionType: string(conv.ConnectionType),
		MessageCount:   len(msgs),
	}
	if conv.EndedAt != nil {
		evt.Duration = conv.EndedAt.Sub(conv.StartedAt)
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, evt); err != nil {
			s.log.Warn().Err(err).Str("conversation", id).Msg("notify failed")
		}
	}()
}

func handleGetMessages(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := s.store.GetMessages(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, "get messages", err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type createMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required,uuid"`
	Content        string `json:"content" binding:"required"`
	Sender         string `json:"sender" binding:"required,oneof=user agent"`
}

func handleCreateMessage(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err)
			return
		}

		msg, err := s.store.CreateMessage(c.Request.Context(), models.NewMessage{
			ConversationID: &req.ConversationID,
			Content:        req.Content,
			Sender:         models.Sender(req.Sender),
		})
		if err != nil {
			s.respondError(c, "create message", err)
			return
		}
		c.JSON(http.StatusOK, msg)
	}
}

type chatRequest struct {
	Message string `json:"message"`
	AgentID string `json:"agentId"`
}

func handleChat(s *server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil && !emptyBody(err) {
			invalidInput(c, err)
			return
		}
		req.Message = strings.TrimSpace(req.Message)
		if req.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Message is required"})
			return
		}

		agentID := req.AgentID
		if agentID == "" {
			agentID = s.defaultAgentID
		}
		category := chat.Classify(req.Message)
		s.log.Debug().Str("category", string(category)).Msg("chat reply")

		c.JSON(http.StatusOK, gin.H{
			"response": chat.ReplyFor(category),
			"agentId":  agentID,
		})
	}
}
