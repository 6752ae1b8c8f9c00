package inbox

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Service is satisfied by *inbox.Service.
type Service interface {
	ListVisible(ctx context.Context, actorID string) ([]models.InboxEntry, error)
	MarkRead(ctx context.Context, conversationID, actorID string, lastSeenMessageID *string) (bool, error)
	SetFlags(ctx context.Context, conversationID, actorID string, patch map[string]any) (bool, error)
	Archive(ctx context.Context, conversationID, actorID string) (bool, error)
	HideUntilNew(ctx context.Context, conversationID, actorID string) (bool, error)
	Unarchive(ctx context.Context, conversationID, actorID string) (bool, error)
	SetMuted(ctx context.Context, conversationID, actorID string, muted bool) (bool, error)
	SetPinned(ctx context.Context, conversationID, actorID string, pinned bool) (bool, error)
	ClearHistoryFromNow(ctx context.Context, conversationID, actorID string) (bool, error)
	RecordMessage(ctx context.Context, conversationID, senderActorID, messageID string, sentAt time.Time) error
}

// Handler handles inbox endpoints
type Handler struct {
	service Service
	logger  ectologger.Logger
}

// NewHandler creates a new inbox handler
func NewHandler(service Service, logger ectologger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register registers the inbox routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/inbox", h.List)
	g.POST("/inbox/flags", h.SetFlags)
	g.POST("/inbox/read", h.MarkRead)
	g.POST("/inbox/messages", h.RecordMessage)
	g.POST("/inbox/archive", h.entry("inbox_handler.Archive", h.service.Archive))
	g.POST("/inbox/hide", h.entry("inbox_handler.HideUntilNew", h.service.HideUntilNew))
	g.POST("/inbox/unarchive", h.entry("inbox_handler.Unarchive", h.service.Unarchive))
	g.POST("/inbox/clear-history", h.entry("inbox_handler.ClearHistory", h.service.ClearHistoryFromNow))
	g.POST("/inbox/mute", h.toggle("inbox_handler.SetMuted", h.service.SetMuted))
	g.POST("/inbox/pin", h.toggle("inbox_handler.SetPinned", h.service.SetPinned))
}

// List returns the actor's visible entries, most recent activity first
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "inbox_handler.List")
	defer span.End()

	actorID, err := routes.RequiredQuery(c, "actorId")
	if err != nil {
		return err
	}

	entries, err := h.service.ListVisible(ctx, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) SetFlags(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "inbox_handler.SetFlags")
	defer span.End()

	var req models.InboxFlagsRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	if _, err := h.service.SetFlags(ctx, req.ConversationID, req.ActorID, req.Patch); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

func (h *Handler) MarkRead(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "inbox_handler.MarkRead")
	defer span.End()

	var req models.MarkInboxReadRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	if _, err := h.service.MarkRead(ctx, req.ConversationID, req.ActorID, req.LastMessageID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

func (h *Handler) RecordMessage(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "inbox_handler.RecordMessage")
	defer span.End()

	var req models.RecordMessageRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	var sentAt time.Time
	if req.SentAt != nil {
		sentAt = *req.SentAt
	}

	if err := h.service.RecordMessage(ctx, req.ConversationID, req.SenderActorID, req.MessageID, sentAt); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

func (h *Handler) entry(spanName string, fn func(ctx context.Context, conversationID, actorID string) (bool, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), spanName)
		defer span.End()

		var req models.InboxEntryRequest
		if err := routes.Bind(c, &req); err != nil {
			return err
		}

		if _, err := fn(ctx, req.ConversationID, req.ActorID); err != nil {
			return err
		}

		return c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// toggle binds an on/off flag; an omitted value turns it on
func (h *Handler) toggle(spanName string, fn func(ctx context.Context, conversationID, actorID string, value bool) (bool, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracing.StartSpan(c.Request().Context(), spanName)
		defer span.End()

		var req models.InboxToggleRequest
		if err := routes.Bind(c, &req); err != nil {
			return err
		}

		value := true
		if req.Value != nil {
			value = *req.Value
		}

		if _, err := fn(ctx, req.ConversationID, req.ActorID, value); err != nil {
			return err
		}

		return c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}
