package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaigemini/telegram-hub/internal/config"
	"github.com/gaigemini/telegram-hub/internal/login"
	"github.com/gaigemini/telegram-hub/internal/messages"
	"github.com/gaigemini/telegram-hub/internal/sessions"
	"github.com/gaigemini/telegram-hub/models"
	"github.com/gaigemini/telegram-hub/pkg/storage"
	"github.com/gaigemini/telegram-hub/pkg/telegram"
	"github.com/gaigemini/telegram-hub/pkg/telegram/mtproto"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.MustLoad()

	// Инициализация подключения к БД
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Проверка подключения
	if err := dbConn.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	db := storage.NewDB(dbConn)
	if err := db.InitSchema(context.Background()); err != nil {
		log.Fatalf("Schema init failed: %v", err)
	}

	registry := buildRegistry(cfg, db)

	// Восстанавливаем сессии, авторизованные до перезапуска.
	restored, err := telegram.RestoreAll(context.Background(), db, registry)
	if err != nil {
		log.Printf("[MAIN] восстановление сессий не удалось: %v", err)
	} else {
		log.Printf("[MAIN] восстановлено сессий: %d", restored)
	}

	r := setupRouter(db, registry)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// При остановке разрываем все живые подключения, чтобы Telegram не
	// держал полуживые сессии.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[MAIN] останавливаемся, отключаем сессии")
	registry.CloseAll(context.Background())
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Printf("[MAIN] ошибка остановки сервера: %v", err)
	}
}

// buildRegistry собирает реестр клиентов: фабрику хранилищ с выделенным
// соединением на сессию и фабрику протокольных клиентов поверх gotd.
func buildRegistry(cfg *config.Config, db *storage.DB) *telegram.Registry {
	notifier := telegram.LogNotifier{}

	stores := func(ctx context.Context, sessionID string) (telegram.SessionStore, error) {
		return db.NewSessionStore(ctx, sessionID)
	}
	clients := func(sessionID string, adapter *telegram.SessionAdapter) (telegram.Client, error) {
		return mtproto.NewClient(mtproto.Options{
			APIID:         cfg.APIID,
			APIHash:       cfg.APIHash,
			SessionID:     sessionID,
			Adapter:       adapter,
			ProxyAddr:     cfg.ProxyAddr,
			ProxyLogin:    cfg.ProxyLogin,
			ProxyPassword: cfg.ProxyPassword,
			OnMessage: func(event models.MessageEvent) {
				if err := notifier.Notify(context.Background(), event); err != nil {
					log.Printf("[MAIN] вебхук не доставлен: %v", err)
				}
			},
		})
	}
	return telegram.NewRegistry(stores, clients, cfg.OpTimeout)
}

// Настройка маршрутов
func setupRouter(db *storage.DB, registry *telegram.Registry) *gin.Engine {
	r := gin.Default()

	flow := telegram.NewLoginFlow(registry)
	resolver := telegram.NewResolver(registry)

	loginGroup := r.Group("/login")
	login.SetupRoutes(loginGroup, flow)

	messageGroup := r.Group("/message")
	messages.SetupRoutes(messageGroup, registry, resolver)

	sessions.SetupRoutes(r, db, registry)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Логирование зарегистрированных роутов
	log.Printf("[ROUTER] Routes initialized:")
	log.Printf("[ROUTER] POST /login/start")
	log.Printf("[ROUTER] POST /login/code")
	log.Printf("[ROUTER] POST /login/password")
	log.Printf("[ROUTER] POST /message/send")
	log.Printf("[ROUTER] GET /session/:id/status")
	log.Printf("[ROUTER] GET /health")

	return r
}
