package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/shahnawazAlam3641/geekZone/internal/auth"
	"github.com/shahnawazAlam3641/geekZone/internal/chat"
	"github.com/shahnawazAlam3641/geekZone/internal/config"
	"github.com/shahnawazAlam3641/geekZone/internal/conversations"
	"github.com/shahnawazAlam3641/geekZone/internal/mailer"
	"github.com/shahnawazAlam3641/geekZone/internal/metrics"
	"github.com/shahnawazAlam3641/geekZone/internal/notify"
	"github.com/shahnawazAlam3641/geekZone/internal/posts"
	"github.com/shahnawazAlam3641/geekZone/internal/storage/postgres"
	"github.com/shahnawazAlam3641/geekZone/internal/storage/sqlite"
	"github.com/shahnawazAlam3641/geekZone/internal/users"
)

func main() {
	migrate := flag.Bool("migrate", false, "run migrations and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file, using process environment")
	}
	cfg := config.MustLoad()
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, migrateFn, err := openStorage(cfg)
	if err != nil {
		log.Fatalf("error opening database: %v", err)
	}
	defer db.Close()

	if *migrate {
		if err := migrateFn(); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		slog.Info("migration completed")
		return
	}

	hub := chat.NewHub()
	relay := chat.NewRelay(db, hub)
	notifier := notify.NewNotifier(db, hub)
	mail := &mailer.SendGrid{APIKey: cfg.SendGridAPIKey, From: cfg.SendGridFrom}

	r := gin.Default()
	r.Use(cors(cfg.ClientURL))

	r.GET("/api/v1/check", func(c *gin.Context) {
		c.String(http.StatusOK, "Backend is alive")
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	auth.RegisterPublic(api, db, cfg, mail)
	chat.RegisterWS(api, hub, relay, cfg.JWTSecret)

	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))
	auth.RegisterProtected(protected, db)
	users.Register(protected, db, notifier)
	posts.Register(protected, db, notifier)
	conversations.Register(protected, db)
	notify.Register(protected, db)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
}

func openStorage(cfg config.Config) (*sql.DB, func() error, error) {
	if cfg.DBDriver == "postgres" {
		pg, err := postgres.New(cfg.PGDsn)
		if err != nil {
			return nil, nil, err
		}
		return pg.Db, pg.Migrate, nil
	}
	sq, err := sqlite.New(cfg.SQLITEDsn)
	if err != nil {
		return nil, nil, err
	}
	return sq.Db, sq.Migrate, nil
}

// cors mirrors the original single-page client's credentialed requests.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
