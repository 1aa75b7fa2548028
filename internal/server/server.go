package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/roomcast/internal/cache"
	"github.com/nfrund/roomcast/internal/config"
	"github.com/nfrund/roomcast/internal/database"
	"github.com/nfrund/roomcast/internal/history"
	"github.com/nfrund/roomcast/internal/logging"
	"github.com/nfrund/roomcast/internal/metrics"
	"github.com/nfrund/roomcast/internal/pubsub"
	"github.com/nfrund/roomcast/internal/rooms"
	"github.com/nfrund/roomcast/internal/store"
	"github.com/nfrund/roomcast/internal/websocket"
)

// Server holds the dependencies for the fan-out core process.
type Server struct {
	E   *echo.Echo
	DB  *surrealdb.DB
	Cfg config.Provider

	broker    pubsub.Broker
	cache     *cache.Cache
	messages  *store.SurrealStore
	collector *metrics.Collector
	router    *rooms.Router
	gateway   *websocket.Gateway
}

// New wires up a server instance. Any dependency that cannot be reached at
// boot is fatal: the process must not serve traffic half-initialized.
func New() *Server {
	logging.New() // Initialize the structured logger
	cfg := config.New()
	ctx := context.Background()

	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	messages := store.NewSurrealStore(db)
	if err := messages.InitSchema(ctx); err != nil {
		slog.Error("Failed to apply message schema", "error", err)
		os.Exit(1)
	}
	messages.StartRetentionSweeper()

	cch, err := cache.New(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB(), cfg.GetHistoryTTL())
	if err != nil {
		slog.Error("Failed to connect to cache", "error", err)
		os.Exit(1)
	}

	broker := newBroker(ctx, cfg)

	collector := metrics.NewCollector()
	hist := history.NewService(messages, cch, collector,
		history.WithLimit(cfg.GetHistoryLimit()),
		history.WithTimeouts(cfg.GetCacheTimeout(), cfg.GetStoreTimeout()),
	)

	router := rooms.NewRouter(broker, hist, rooms.WithBrokerTimeout(cfg.GetBrokerTimeout()))
	gateway := websocket.NewGateway(router)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	return &Server{
		E:         e,
		DB:        db,
		Cfg:       cfg,
		broker:    broker,
		cache:     cch,
		messages:  messages,
		collector: collector,
		router:    router,
		gateway:   gateway,
	}
}

// newBroker selects the pub/sub backend. The in-memory driver only makes
// sense for a single process; redis is the default.
func newBroker(ctx context.Context, cfg config.Provider) pubsub.Broker {
	switch cfg.GetBrokerDriver() {
	case config.BrokerDriverMemory:
		slog.Warn("Using in-memory broker; cross-process fan-out is disabled")
		return pubsub.NewWatermillBridge()
	default:
		bridge, err := pubsub.NewRedisBridge(ctx, cfg.GetRedisAddr(), cfg.GetRedisPassword(), cfg.GetRedisDB())
		if err != nil {
			slog.Error("Failed to connect to broker", "error", err)
			os.Exit(1)
		}
		return bridge
	}
}

// Router is a getter for the server's room router, useful for testing.
func (s *Server) Router() *rooms.Router {
	return s.router
}
