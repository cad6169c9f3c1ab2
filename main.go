package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"booknet-backend/internal/books"
	"booknet-backend/internal/feedback"
	"booknet-backend/internal/platform/apidoc"
	"booknet-backend/internal/platform/auth"
	"booknet-backend/internal/platform/db"
)

func main() {
	// 設定読み込み
	cfg, err := db.LoadConfig(db.DefaultConfigPath)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s version:%s\n", mode, cfg.Version)

	ttl, err := time.ParseDuration(cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatalf("[ERROR] invalid auth.token_ttl %q: %v", cfg.Auth.TokenTTL, err)
	}

	conn, dialect, err := db.Open(cfg.DB)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	defer conn.Close()
	log.Printf("[INFO] connected to DB: driver=%s", dialect)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx, conn, dialect); err != nil {
		cancelMigrate()
		log.Fatalf("[ERROR] migrate: %v", err)
	}
	cancelMigrate()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		origins := cfg.CORS.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:4200"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	apidoc.RegisterRoutes(r)

	authSvc := auth.NewService(conn, []byte(cfg.Auth.JWTSecret), ttl)
	catalog := books.NewSQLStore(conn, dialect)

	// /api/v1
	api := r.Group("/api/v1")
	api.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	auth.RegisterRoutes(api.Group("/auth"), authSvc)

	secured := api.Group("", auth.RequireAuth(authSvc.Secret()))
	books.RegisterRoutes(secured, books.NewService(catalog, books.NewLocalCoverStorage(cfg.Storage.CoverDir)))
	feedback.RegisterRoutes(secured, feedback.NewService(feedback.NewStore(conn, dialect)))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		if mode == "release" {
			// 本番は TLS
			certFile := fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Cert)
			keyFile := fmt.Sprintf("config/tls/release/%s", cfg.Certificate.Key)
			log.Printf("[INFO] listening on https://%s", cfg.Server.Addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			log.Printf("[INFO] listening on http://%s", cfg.Server.Addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
