package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/chxlky/trello-matrix-bot/internal/events"
	"github.com/chxlky/trello-matrix-bot/internal/models"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const WebhookPath = "/api/v1/trello/webhook"

type EventDispatcher interface {
	Dispatch(ctx context.Context, event *events.Event) error
}

type Handler struct {
	Dispatcher EventDispatcher
	// Workers is a semaphore bounding concurrent dispatches.
	Workers chan struct{}

	inflight sync.WaitGroup
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.HEAD(WebhookPath, h.TrelloWebhookHandler)
	router.POST(WebhookPath, h.TrelloWebhookHandler)
	router.GET("/api/health", h.HealthCheckHandler)
}

func (h *Handler) TrelloWebhookHandler(c *gin.Context) {
	// Trello probes the callback URL with HEAD when the webhook is created
	if c.Request.Method != http.MethodPost {
		c.Status(http.StatusOK)
		return
	}

	var payload models.TrelloWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		zap.L().Warn("Could not bind Trello webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON payload"})
		return
	}

	event, ok := events.Classify(&payload)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "No action taken"})
		return
	}

	zap.L().Info("Received Trello event",
		zap.String("event", event.Def.Name),
		zap.String("boardID", event.Board.ID))

	// The request context ends with the response, so dispatch gets its own.
	h.Workers <- struct{}{}
	h.inflight.Add(1)
	go func() {
		defer func() {
			<-h.Workers
			h.inflight.Done()
		}()
		if err := h.Dispatcher.Dispatch(context.Background(), event); err != nil {
			zap.L().Error("Failed to dispatch Trello event", zap.String("event", event.Def.Name), zap.Error(err))
		}
	}()

	c.JSON(http.StatusOK, gin.H{"message": "Event accepted"})
}

func (h *Handler) HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Wait blocks until every accepted event has been dispatched.
func (h *Handler) Wait() {
	h.inflight.Wait()
}
