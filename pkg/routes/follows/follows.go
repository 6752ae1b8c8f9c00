package follows

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/graph"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

const defaultSuggestionLimit = 10

// Engine is the follow side of *relationships.Engine.
type Engine interface {
	SendFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (models.FollowRequestStatus, error)
	AcceptFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error)
	DeclineFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error)
	CancelFollowRequest(ctx context.Context, requesterActorID, targetActorID string) (bool, error)
	FollowStatus(ctx context.Context, requesterActorID, targetActorID string) (models.FollowRequestStatus, error)
	IncomingRequests(ctx context.Context, actorID string) ([]models.FollowRequest, error)
	Unfollow(ctx context.Context, followerActorID, followedActorID string) (bool, error)
	Followers(ctx context.Context, actorID string) ([]models.FollowEdge, error)
	Following(ctx context.Context, actorID string) ([]models.FollowEdge, error)
	SuggestionsEnabled() bool
	Suggestions(ctx context.Context, actorID string, limit int) ([]graph.Suggestion, error)
}

// Handler handles follow request and follow edge endpoints
type Handler struct {
	engine Engine
	logger ectologger.Logger
}

// NewHandler creates a new follow handler
func NewHandler(engine Engine, logger ectologger.Logger) *Handler {
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register registers the follow routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/follow-requests", h.Send)
	g.POST("/follow-requests/accept", h.Accept)
	g.POST("/follow-requests/decline", h.Decline)
	g.POST("/follow-requests/cancel", h.Cancel)
	g.GET("/follow-requests/incoming", h.Incoming)
	g.GET("/follow-requests/status", h.Status)
	g.DELETE("/follows", h.Unfollow)
	g.GET("/actors/:id/followers", h.Followers)
	g.GET("/actors/:id/following", h.Following)
	if h.engine.SuggestionsEnabled() {
		g.GET("/actors/:id/suggestions", h.Suggestions)
	}
}

// Send opens a follow request, or reports the state of the existing one
func (h *Handler) Send(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Send")
	defer span.End()

	var req models.FollowRequestBody
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	status, err := h.engine.SendFollowRequest(ctx, req.RequesterActorID, req.TargetActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FollowStatusResponse{Status: status})
}

func (h *Handler) Accept(c echo.Context) error {
	return h.transition(c, "follows_handler.Accept", h.engine.AcceptFollowRequest)
}

func (h *Handler) Decline(c echo.Context) error {
	return h.transition(c, "follows_handler.Decline", h.engine.DeclineFollowRequest)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, "follows_handler.Cancel", h.engine.CancelFollowRequest)
}

// transition runs a request state change; a stale request answers ok=false with a 200
func (h *Handler) transition(c echo.Context, spanName string, fn func(ctx context.Context, requesterActorID, targetActorID string) (bool, error)) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), spanName)
	defer span.End()

	var req models.FollowRequestBody
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	ok, err := fn(ctx, req.RequesterActorID, req.TargetActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: ok})
}

func (h *Handler) Incoming(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Incoming")
	defer span.End()

	actorID, err := routes.RequiredQuery(c, "actorId")
	if err != nil {
		return err
	}

	requests, err := h.engine.IncomingRequests(ctx, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, requests)
}

func (h *Handler) Status(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Status")
	defer span.End()

	requesterActorID, err := routes.RequiredQuery(c, "requesterActorId")
	if err != nil {
		return err
	}
	targetActorID, err := routes.RequiredQuery(c, "targetActorId")
	if err != nil {
		return err
	}

	status, err := h.engine.FollowStatus(ctx, requesterActorID, targetActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.FollowStatusResponse{Status: status})
}

func (h *Handler) Unfollow(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Unfollow")
	defer span.End()

	var req models.UnfollowRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	ok, err := h.engine.Unfollow(ctx, req.FollowerActorID, req.FollowedActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: ok})
}

func (h *Handler) Followers(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Followers")
	defer span.End()

	edges, err := h.engine.Followers(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, edges)
}

func (h *Handler) Following(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Following")
	defer span.End()

	edges, err := h.engine.Following(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, edges)
}

// Suggestions lists friends of friends from the graph projection
func (h *Handler) Suggestions(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "follows_handler.Suggestions")
	defer span.End()

	limit, err := routes.IntQuery(c, "limit", defaultSuggestionLimit)
	if err != nil {
		return err
	}

	suggestions, err := h.engine.Suggestions(ctx, c.Param("id"), limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, suggestions)
}
