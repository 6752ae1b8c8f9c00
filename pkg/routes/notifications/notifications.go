package notifications

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Router is satisfied by *notifications.Router.
type Router interface {
	Notify(ctx context.Context, recipientActorID string, event models.NotificationEvent) error
	NotifyOrganizationManagers(ctx context.Context, organizationID string, event models.NotificationEvent) error
	ListInbox(ctx context.Context, actorID string, limit int, after *models.NotificationCursor) ([]models.Notification, error)
	CountUnread(ctx context.Context, actorID string) (int, error)
	MarkRead(ctx context.Context, id, actorID string) (bool, error)
	MarkAllSeen(ctx context.Context, actorID string) (int64, error)
	MarkAllRead(ctx context.Context, actorID string) (int64, error)
}

type UnreadCountResponse struct {
	Count int `json:"count"`
}

type MarkAllResponse struct {
	OK      bool  `json:"ok"`
	Updated int64 `json:"updated"`
}

// Handler handles notification endpoints
type Handler struct {
	router Router
	logger ectologger.Logger
}

// NewHandler creates a new notification handler
func NewHandler(router Router, logger ectologger.Logger) *Handler {
	return &Handler{
		router: router,
		logger: logger,
	}
}

// Register registers the notification routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/notifications", h.Notify)
	g.GET("/notifications", h.List)
	g.GET("/notifications/unread-count", h.UnreadCount)
	g.POST("/notifications/mark-read", h.MarkRead)
	g.POST("/notifications/mark-all-seen", h.MarkAllSeen)
	g.POST("/notifications/mark-all-read", h.MarkAllRead)
	g.POST("/organizations/:id/notifications", h.NotifyOrganization)
}

// Notify answers ok=true whether or not a row was stored, so a blocked source learns nothing
func (h *Handler) Notify(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "notifications_handler.Notify")
	defer span.End()

	var req models.NotifyRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	event := models.NotificationEvent{
		SourceActorID: req.SourceActorID,
		Kind:          req.Kind,
		ObjectType:    req.ObjectType,
		ObjectID:      req.ObjectID,
		LinkPath:      req.LinkPath,
		Context:       req.Context,
	}
	if err := h.router.Notify(ctx, req.RecipientActorID, event); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

func (h *Handler) NotifyOrganization(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "notifications_handler.NotifyOrganization")
	defer span.End()

	var req models.NotifyOrganizationRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	event := models.NotificationEvent{
		SourceActorID: req.SourceActorID,
		Kind:          req.Kind,
		ObjectType:    req.ObjectType,
		ObjectID:      req.ObjectID,
		LinkPath:      req.LinkPath,
		Context:       req.Context,
	}
	if err := h.router.NotifyOrganizationManagers(ctx, c.Param("id"), event); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// List pages an actor's notifications newest first. before (RFC3339 createdAt) and beforeId
// are taken from the last notification of the previous page.
func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "notifications_handler.List")
	defer span.End()

	actorID, err := routes.RequiredQuery(c, "actorId")
	if err != nil {
		return err
	}
	limit, err := routes.IntQuery(c, "limit", 0)
	if err != nil {
		return err
	}

	var after *models.NotificationCursor
	if raw := c.QueryParam("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "before must be an RFC3339 timestamp")
		}
		after = &models.NotificationCursor{CreatedAt: t, ID: c.QueryParam("beforeId")}
	} else if c.QueryParam("beforeId") != "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "beforeId requires before")
	}

	notifications, err := h.router.ListInbox(ctx, actorID, limit, after)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, notifications)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "notifications_handler.UnreadCount")
	defer span.End()

	actorID, err := routes.RequiredQuery(c, "actorId")
	if err != nil {
		return err
	}

	count, err := h.router.CountUnread(ctx, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, UnreadCountResponse{Count: count})
}

func (h *Handler) MarkRead(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "notifications_handler.MarkRead")
	defer span.End()

	var req models.MarkNotificationReadRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	ok, err := h.router.MarkRead(ctx, req.ID, req.ActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: ok})
}

func (h *Handler) MarkAllSeen(c echo.Context) error {
	return h.markAll(c, "notifications_handler.MarkAllSeen", h.router.MarkAllSeen)
}

func (h *Handler) MarkAllRead(c echo.Context) error {
	return h.markAll(c, "notifications_handler.MarkAllRead", h.router.MarkAllRead)
}

func (h *Handler) markAll(c echo.Context, spanName string, fn func(ctx context.Context, actorID string) (int64, error)) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), spanName)
	defer span.End()

	var req models.ActorScopedRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	updated, err := fn(ctx, req.ActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MarkAllResponse{OK: true, Updated: updated})
}
