package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"barberq/config"
	"barberq/internal/handlers"
	"barberq/internal/services"
	"barberq/internal/store/pb"
	"barberq/monitoring"
	"barberq/security"
	"barberq/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	// Initialize services
	dataStore := pb.New(app)
	notifier := services.NewNotifier(
		dataStore,
		dataStore,
		services.NewExpoPush(cfg),
		services.NewPubNubPublisher(pn),
		redisClient,
		cfg,
	)
	defer notifier.Close()

	queueService := services.NewQueueService(
		dataStore, dataStore, dataStore, dataStore,
		notifier, redisClient, cfg,
	)

	// Initialize handlers
	queueHandler := handlers.NewQueueHandler(app, queueService)
	rateLimiter := security.NewRateLimiter(redisClient, cfg)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	if cfg.EnableMetrics {
		monitoring.NewMonitor(ctx, redisClient)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		syncActiveShopsToRedis(app, redisClient)

		// Queue endpoints
		e.Router.POST("/api/v1/queue", rateLimiter.AntiBot(rateLimiter.LimitJoin(queueHandler.JoinQueue)))
		e.Router.POST("/api/v1/queue/walkin", queueHandler.AddWalkIn)
		e.Router.PUT("/api/v1/queue/{id}/cancel", queueHandler.CancelEntry)
		e.Router.PUT("/api/v1/queue/{id}/status", queueHandler.UpdateStatus)
		e.Router.PATCH("/api/v1/queue/{id}/services", queueHandler.UpdateServices)
		e.Router.PUT("/api/v1/queue/{id}/move-down", queueHandler.MoveDown)
		e.Router.GET("/api/v1/queue/shop/{shopId}", queueHandler.GetShopQueue)
		e.Router.GET("/api/v1/queue/barber/{barberId}", queueHandler.GetBarberQueue)
		e.Router.GET("/api/v1/queue/code/{code}", queueHandler.LookupByCode)
		e.Router.GET("/api/v1/queue/position", queueHandler.GetQueuePosition)

		// Metrics endpoint
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		setupShopHooks(app, redisClient)

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// syncActiveShopsToRedis rebuilds the active_shops set from the database
// so the monitor and restore paths see a fresh view after a restart.
func syncActiveShopsToRedis(app *pocketbase.PocketBase, redisClient *redis.Client) {
	ctx := context.Background()

	var records []dbx.NullStringMap
	if err := app.DB().NewQuery(
		"SELECT id FROM shops WHERE is_open = TRUE",
	).All(&records); err != nil {
		log.Printf("Error fetching open shops: %v", err)
		return
	}

	redisClient.Del(ctx, "active_shops")

	if len(records) > 0 {
		var shopIDs []interface{}
		for _, record := range records {
			if id := record["id"].String; id != "" {
				shopIDs = append(shopIDs, id)
			}
		}

		if len(shopIDs) > 0 {
			redisClient.SAdd(ctx, "active_shops", shopIDs...)
			log.Printf("Synced %d open shops to Redis", len(shopIDs))
		}
	}
}

// setupShopHooks keeps the active_shops set in step with shop records
// created or edited through the PocketBase API. Redis sync failures are
// logged, never surfaced to the request; every handler hands off to
// e.Next() so the record write itself always proceeds.
func setupShopHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	app.OnRecordCreateRequest("shops").BindFunc(shopCreatedHook(redisClient))
	app.OnRecordUpdateRequest("shops").BindFunc(shopUpdatedHook(redisClient))
	app.OnRecordDeleteRequest("shops").BindFunc(shopDeletedHook(redisClient))
}

func shopCreatedHook(redisClient *redis.Client) func(*core.RecordRequestEvent) error {
	return func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		if e.Record.GetBool("is_open") {
			if err := redisClient.SAdd(ctx, "active_shops", e.Record.Id).Err(); err != nil {
				slog.Error("Failed to add new open shop to Redis", "shopID", e.Record.Id, "error", err)
			} else {
				slog.Info("Added new open shop to Redis", "shopID", e.Record.Id)
			}
		}
		return e.Next()
	}
}

func shopUpdatedHook(redisClient *redis.Client) func(*core.RecordRequestEvent) error {
	return func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		if e.Record.GetBool("is_open") {
			if err := redisClient.SAdd(ctx, "active_shops", e.Record.Id).Err(); err != nil {
				slog.Error("Failed to add open shop to Redis", "shopID", e.Record.Id, "error", err)
			}
		} else {
			if err := redisClient.SRem(ctx, "active_shops", e.Record.Id).Err(); err != nil {
				slog.Error("Failed to remove closed shop from Redis", "shopID", e.Record.Id, "error", err)
			}
		}
		return e.Next()
	}
}

func shopDeletedHook(redisClient *redis.Client) func(*core.RecordRequestEvent) error {
	return func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		if err := redisClient.SRem(ctx, "active_shops", e.Record.Id).Err(); err != nil {
			slog.Error("Failed to remove deleted shop from Redis", "shopID", e.Record.Id, "error", err)
		}
		return e.Next()
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
