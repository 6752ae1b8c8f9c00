package conversations

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/routes"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// Creator is satisfied by *inbox.Service.
type Creator interface {
	GetOrCreateOneToOne(ctx context.Context, actorA, actorB string) (*models.Conversation, error)
	CreateGroup(ctx context.Context, creatorActorID string, memberActorIDs []string) (*models.Conversation, error)
}

// Handler handles conversation creation endpoints
type Handler struct {
	creator Creator
	logger  ectologger.Logger
}

// NewHandler creates a new conversation handler
func NewHandler(creator Creator, logger ectologger.Logger) *Handler {
	return &Handler{
		creator: creator,
		logger:  logger,
	}
}

// Register registers the conversation routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/conversations/one-to-one", h.OneToOne)
	g.POST("/conversations/group", h.Group)
}

// OneToOne returns the direct conversation of a pair, creating it on first use
func (h *Handler) OneToOne(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conversations_handler.OneToOne")
	defer span.End()

	var req models.OneToOneRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	conversation, err := h.creator.GetOrCreateOneToOne(ctx, req.ActorA, req.ActorB)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ConversationResponse{ConversationID: conversation.ID})
}

func (h *Handler) Group(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "conversations_handler.Group")
	defer span.End()

	var req models.GroupConversationRequest
	if err := routes.Bind(c, &req); err != nil {
		return err
	}

	conversation, err := h.creator.CreateGroup(ctx, req.CreatorActorID, req.MemberActorIDs)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, models.ConversationResponse{ConversationID: conversation.ID})
}
