package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"qindex/internal/admin"
	"qindex/internal/auth"
	"qindex/internal/config"
	"qindex/internal/engine"
	"qindex/internal/fixture"
	"qindex/internal/instrument"
	"qindex/internal/metadata"
	"qindex/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Load config
	cfg, err := config.Load(os.Getenv("QINDEX_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("Database connected (%s)", db.Dialect.Name())

	// 3. Load the object model
	loadSchema := func() (*metadata.Schema, error) {
		if cfg.Schema.Path == "" {
			return fixture.Schema()
		}
		return metadata.LoadSchemaFile(cfg.Schema.Path)
	}
	schema, err := loadSchema()
	if err != nil {
		log.Fatalf("Failed to load schema: %v", err)
	}

	// 4. Synchronize index tables and build the registry
	migrator := store.NewMigrator(db)
	syncOpts := store.SyncOptions{Prefix: cfg.Index.TablePrefix, AppVersion: cfg.Index.AppVersion}
	reg, err := migrator.Sync(ctx, schema, syncOpts)
	if err != nil {
		log.Fatalf("Failed to synchronize index schema: %v", err)
	}
	log.Printf("Index ready (%d qualified names, %d entity types)", len(reg.Descriptors()), len(reg.Types().Entities()))

	// 5. Query log
	var recorder instrument.Recorder = instrument.NoopRecorder{}
	if cfg.QueryLog.Enabled {
		ql := instrument.NewQueryLog(db.DB, db.Dialect, cfg.QueryLog.BufferSize, cfg.QueryLog.FlushIntervalMs)
		defer ql.Stop()
		recorder = ql
		instrument.StartCleanup(ctx, db.DB, db.Dialect, cfg.QueryLog.RetentionDays, time.Hour)
	}

	// 6. Searcher
	searcher := engine.NewSearcher(db, reg, engine.SearcherOptions{
		AppVersion: cfg.Index.AppVersion,
		Recorder:   recorder,
		SlowQuery:  time.Duration(cfg.Server.SlowQueryMs) * time.Millisecond,
	})

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 9. Auth routes (no auth required)
	ttl := time.Duration(cfg.Auth.TokenTTLMin) * time.Minute
	auth.RegisterAuthRoutes(app, auth.NewAuthHandler(cfg.Auth.Clients, cfg.JWTSecret, ttl))

	authMW := auth.AuthMiddleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	// 10. Query and entity routes
	engine.RegisterQueryRoutes(app, engine.NewHandler(searcher), authMW)

	// 11. Admin routes (auth + admin required)
	adminHandler := admin.NewHandler(db, searcher, migrator, loadSchema, syncOpts)
	admin.RegisterAdminRoutes(app, adminHandler, instrument.NewQueryLogHandler(db.DB, db.Dialect), authMW, adminMW)

	// 12. Shut down on SIGINT/SIGTERM so the query log is flushed
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down")
		cancel()
		if err := app.Shutdown(); err != nil {
			log.Printf("ERROR: shutdown: %v", err)
		}
	}()

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Printf("ERROR: %v", err)
	}
}
