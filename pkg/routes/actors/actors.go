package actors

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Directory is satisfied by *actors.Directory.
type Directory interface {
	Resolve(ctx context.Context, kind models.ActorKind, ownerID string) (*models.Actor, error)
	Get(ctx context.Context, actorID string) (*models.Actor, error)
	ActorsOf(ctx context.Context, actorIDs []string) ([]models.Actor, error)
	Deactivate(ctx context.Context, actorID string) error
	SetSandboxed(ctx context.Context, actorID string, sandboxed bool) error
}

// Handler handles actor directory endpoints
type Handler struct {
	directory Directory
	logger    ectologger.Logger
}

// NewHandler creates a new actor handler
func NewHandler(directory Directory, logger ectologger.Logger) *Handler {
	return &Handler{
		directory: directory,
		logger:    logger,
	}
}

// Register registers the actor routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/actors/resolve", h.Resolve)
	g.POST("/actors/batch", h.Batch)
	g.GET("/actors/:id", h.Get)
	g.POST("/actors/:id/deactivate", h.Deactivate)
	g.POST("/actors/:id/sandbox", h.SetSandboxed)
}

// Resolve returns the actor for a human or organization, creating it on first use
func (h *Handler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "actors_handler.Resolve")
	defer span.End()

	var req models.ResolveActorRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	actor, err := h.directory.Resolve(ctx, req.OwnerKind, req.OwnerID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ResolveActorResponse{ActorID: actor.ID})
}

func (h *Handler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "actors_handler.Get")
	defer span.End()

	actor, err := h.directory.Get(ctx, c.Param("id"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, actor)
}

// Batch hydrates many actors at once, in request order
func (h *Handler) Batch(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "actors_handler.Batch")
	defer span.End()

	var req models.BatchActorsRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	actors, err := h.directory.ActorsOf(ctx, req.IDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, actors)
}

func (h *Handler) Deactivate(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "actors_handler.Deactivate")
	defer span.End()

	if err := h.directory.Deactivate(ctx, c.Param("id")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

func (h *Handler) SetSandboxed(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "actors_handler.SetSandboxed")
	defer span.End()

	var req models.SetSandboxedRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	if err := h.directory.SetSandboxed(ctx, c.Param("id"), req.Sandboxed); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}
