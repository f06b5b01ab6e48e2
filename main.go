package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/PATILYASHH/SwiftChat/internal/config"
	"github.com/PATILYASHH/SwiftChat/internal/db"
	"github.com/PATILYASHH/SwiftChat/internal/handlers"
	"github.com/PATILYASHH/SwiftChat/internal/middleware"
	"github.com/PATILYASHH/SwiftChat/internal/observability"
	"github.com/PATILYASHH/SwiftChat/internal/rabbitmq"
	"github.com/PATILYASHH/SwiftChat/internal/repositories"
	"github.com/PATILYASHH/SwiftChat/internal/session"
	"github.com/PATILYASHH/SwiftChat/internal/telemetry"
	"github.com/PATILYASHH/SwiftChat/internal/ws"
)

func main() {
	cfg := config.Load()

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.OTLPEndpoint, "swiftchat", cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.swiftchat", "swiftchat", cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	groupMessageRepo := repositories.NewGroupMessageRepo(database)

	verifier := session.NewJWTVerifier(cfg.JWTSecret)

	registry := ws.NewRegistry()
	subs := ws.NewSubscriptionTable()
	router := ws.NewRouter(registry, subs, messageRepo, groupRepo, groupMessageRepo)
	wsHandler := ws.NewHandler(registry, subs, router, verifier, userRepo)

	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo, registry)
	groupHandler := handlers.NewGroupHandler(groupRepo, groupMessageRepo, subs, audit)

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("swiftchat"))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier, userRepo)

	engine.GET("/messages/:user_id", authMiddleware, messageHandler.GetConversation)
	engine.GET("/users", authMiddleware, messageHandler.ListUsers)

	engine.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	engine.GET("/groups/me", authMiddleware, groupHandler.MyGroups)
	engine.GET("/groups/address/:address", authMiddleware, groupHandler.GetGroupByAddress)
	engine.GET("/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)
	engine.POST("/groups/:group_id/leave", authMiddleware, groupHandler.LeaveGroup)
	engine.DELETE("/groups/:group_id/members/:user_id", authMiddleware, groupHandler.RemoveMember)

	engine.GET("/ws", wsHandler.Handle)

	engine.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(engine, audit, cfg.DebugRoutes)

	if err := engine.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
