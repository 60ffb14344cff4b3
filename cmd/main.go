package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/1f916-ai/chat-service/config"
	"github.com/1f916-ai/chat-service/internal/completion"
	"github.com/1f916-ai/chat-service/internal/postgres"
	"github.com/1f916-ai/chat-service/internal/rtstore"
	"github.com/1f916-ai/chat-service/internal/script"
	"github.com/1f916-ai/chat-service/internal/service"
	httpx "github.com/1f916-ai/chat-service/internal/transport/http"
	"github.com/1f916-ai/chat-service/internal/transport/ws"
	"github.com/1f916-ai/chat-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

func main() {
	demo := flag.Bool("demo", false, "replay the stock conversation into a fresh room on startup")
	flag.Parse()

	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.Env(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "store", cfg.Store.Backend)

	ctx := context.Background()

	// --- realtime store ---
	var store rtstore.Store
	switch cfg.Store.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		store = rtstore.NewRedis(rdb)
	default:
		store = rtstore.NewMemory()
	}
	defer store.Close()

	// --- services ---
	matchmaker := service.NewMatchmaker(store)
	rooms := service.NewRoomService(store)
	presence := service.NewPresence(store)
	relay := service.NewRelay(store)

	// --- optional postgres archive ---
	var history httpx.HistoryReader
	if cfg.Postgres.DSN != "" {
		db, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer db.Close()

		matchmaker.SetArchive(postgres.NewRoomRepository(db.Pool))
		msgRepo := postgres.NewMessageRepository(db.Pool)
		relay.SetArchive(msgRepo)
		history = msgRepo
		slog.Info("archive enabled")
	}

	// --- completion backend ---
	var completions *completion.Client
	if cfg.Completion.BaseURL != "" {
		completions = completion.NewClient(cfg.Completion.BaseURL, cfg.Completion.APIKey, cfg.Completion.TimeoutOr(30*time.Second))
	}

	// --- WS hub & server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, rooms, presence, relay, completions)

	// --- HTTP ---
	handler := httpx.NewHandler(matchmaker, rooms, relay, history)
	router := httpx.NewRouter(handler, wsServer)
	httpSrv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeoutOr(10 * time.Second),
		WriteTimeout: cfg.HTTP.WriteTimeoutOr(15 * time.Second),
		IdleTimeout:  60 * time.Second,
	}

	if *demo {
		go runDemo(ctx, cfg, matchmaker, relay)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpSrv.Shutdown(ctxShutdown)
	slog.Info("stopped")
}

// runDemo pairs the two stock identities into a room and replays the
// canned transcript, so a fresh deploy has something to watch.
func runDemo(ctx context.Context, cfg *config.Config, matchmaker *service.Matchmaker, relay *service.Relay) {
	roomID, _, err := matchmaker.FindOrCreateRoom(ctx, script.AlphaID)
	if err != nil {
		slog.Error("demo: create room", "err", err)
		return
	}
	if _, _, err := matchmaker.FindOrCreateRoom(ctx, script.OmegaID); err != nil {
		slog.Error("demo: join peer", "err", err)
		return
	}

	minD, maxD := cfg.Script.Delays(time.Second, 3*time.Second)
	player := script.NewPlayer(relay, minD, maxD)
	slog.Info("demo conversation starting", "room", roomID, "lines", script.Len())
	player.Run(ctx, roomID)
	slog.Info("demo conversation finished", "room", roomID)
}
