package blocks

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Writer is the block side of *relationships.Engine.
type Writer interface {
	Block(ctx context.Context, blockerActorID, blockedActorID string) error
	Unblock(ctx context.Context, blockerActorID, blockedActorID string) (bool, error)
}

// Lister is satisfied by *blocks.Registry.
type Lister interface {
	ListBlocked(ctx context.Context, actorID string) ([]models.BlockEdge, error)
}

// Handler handles block endpoints
type Handler struct {
	writer Writer
	lister Lister
	logger ectologger.Logger
}

// NewHandler creates a new block handler
func NewHandler(writer Writer, lister Lister, logger ectologger.Logger) *Handler {
	return &Handler{
		writer: writer,
		lister: lister,
		logger: logger,
	}
}

// Register registers the block routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/blocks", h.Block)
	g.DELETE("/blocks", h.Unblock)
	g.GET("/blocks", h.List)
}

func (h *Handler) Block(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "blocks_handler.Block")
	defer span.End()

	var req models.BlockRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	if err := h.writer.Block(ctx, req.BlockerActorID, req.BlockedActorID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: true})
}

// Unblock answers ok=false when the caller had no block to remove
func (h *Handler) Unblock(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "blocks_handler.Unblock")
	defer span.End()

	var req models.BlockRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	ok, err := h.writer.Unblock(ctx, req.BlockerActorID, req.BlockedActorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.OKResponse{OK: ok})
}

func (h *Handler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "blocks_handler.List")
	defer span.End()

	actorID, err := routes.RequiredQuery(c, "actorId")
	if err != nil {
		return err
	}

	edges, err := h.lister.ListBlocked(ctx, actorID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, edges)
}
