// Package app assembles repositories, engine services and HTTP routes.
package app

import (
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/internal/repositories/actor"
	"github.com/Ramsey-B/trellis/internal/repositories/block"
	"github.com/Ramsey-B/trellis/internal/repositories/conversation"
	"github.com/Ramsey-B/trellis/internal/repositories/follow"
	"github.com/Ramsey-B/trellis/internal/repositories/followrequest"
	"github.com/Ramsey-B/trellis/internal/repositories/notification"
	"github.com/Ramsey-B/trellis/internal/repositories/owner"
	"github.com/Ramsey-B/trellis/pkg/actors"
	"github.com/Ramsey-B/trellis/pkg/blocks"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/Ramsey-B/trellis/pkg/events"
	"github.com/Ramsey-B/trellis/pkg/inbox"
	"github.com/Ramsey-B/trellis/pkg/metrics"
	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/Ramsey-B/trellis/pkg/notifications"
	"github.com/Ramsey-B/trellis/pkg/relationships"
	actorroutes "github.com/Ramsey-B/trellis/pkg/routes/actors"
	blockroutes "github.com/Ramsey-B/trellis/pkg/routes/blocks"
	conversationroutes "github.com/Ramsey-B/trellis/pkg/routes/conversations"
	followroutes "github.com/Ramsey-B/trellis/pkg/routes/follows"
	inboxroutes "github.com/Ramsey-B/trellis/pkg/routes/inbox"
	notificationroutes "github.com/Ramsey-B/trellis/pkg/routes/notifications"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

const APIPrefix = "/api/v1"

// Options carries the optional infrastructure. Leave a field nil to disable it.
type Options struct {
	Limiter relationships.RequestLimiter
	Emitter *events.Emitter
	Graph   relationships.FollowProjection
}

// Services is the engine surface shared by the HTTP routes and background jobs.
type Services struct {
	Directory     *actors.Directory
	Blocks        *blocks.Registry
	Relationships *relationships.Engine
	Inbox         *inbox.Service
	Notifications *notifications.Router
	logger        ectologger.Logger
}

// NewServices builds every repository and engine component on top of db.
func NewServices(db database.DB, opts Options, logger ectologger.Logger) *Services {
	blockRepo := block.NewRepository(db, logger)

	directory := actors.NewDirectory(owner.NewRepository(db, logger), actor.NewRepository(db, logger), logger)
	registry := blocks.NewRegistry(blockRepo, logger)
	router := notifications.NewRouter(directory, registry, notification.NewRepository(db, logger), opts.Emitter, logger)

	engine := relationships.NewEngine(relationships.Dependencies{
		DB:        db,
		Actors:    directory,
		Blocks:    registry,
		BlockRepo: blockRepo,
		Follows:   follow.NewRepository(db, logger),
		Requests:  followrequest.NewRepository(db, logger),
		Notifier:  router,
		Limiter:   opts.Limiter,
		Emitter:   opts.Emitter,
		Graph:     opts.Graph,
	}, logger)

	return &Services{
		Directory:     directory,
		Blocks:        registry,
		Relationships: engine,
		Inbox:         inbox.NewService(db, directory, registry, conversation.NewRepository(db, logger), opts.Emitter, logger),
		Notifications: router,
		logger:        logger,
	}
}

// RegisterRoutes mounts every resource handler on g.
func (s *Services) RegisterRoutes(g *echo.Group) {
	actorroutes.NewHandler(s.Directory, s.logger).Register(g)
	followroutes.NewHandler(s.Relationships, s.logger).Register(g)
	blockroutes.NewHandler(s.Relationships, s.Blocks, s.logger).Register(g)
	inboxroutes.NewHandler(s.Inbox, s.logger).Register(g)
	conversationroutes.NewHandler(s.Inbox, s.logger).Register(g)
	notificationroutes.NewHandler(s.Notifications, s.logger).Register(g)
}

// NewEcho returns an echo instance with the shared error handler and request middleware.
func NewEcho(serviceName string, logger ectologger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Context())
	e.Use(metrics.Middleware())
	// Logger renders errors itself, so metrics observes the final status
	e.Use(middleware.Logger(logger))

	return e
}
