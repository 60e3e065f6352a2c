package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/btengland/VantageConnectAPI/internal/config"
	"github.com/btengland/VantageConnectAPI/internal/game"
	"github.com/btengland/VantageConnectAPI/internal/relay"
	"github.com/btengland/VantageConnectAPI/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Game clients connect from native apps and arbitrary dev origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

func setupHTTP(cfg config.Config, log *zap.Logger) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(cfg, log)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	st := store.NewRedisStore(infra.Redis.Client)
	hub := relay.NewHub(log)

	engine := game.NewEngine(st)
	registry := game.NewConnectionRegistry(st)
	broadcaster := game.NewBroadcaster(hub, log)
	dispatcher := game.NewDispatcher(engine, registry, broadcaster, log)

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "connections": hub.Count()})
	})

	router.GET("/ws", func(c *gin.Context) {
		sessionID := c.Query("sessionId")
		if sessionID == "" {
			// Reject before the upgrade, before any state mutation.
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		connectionID := hub.Register(ws)
		ctx := c.Request.Context()

		if err := dispatcher.Connect(ctx, connectionID, sessionID); err != nil {
			log.Error("connect failed",
				zap.String("connectionId", connectionID),
				zap.String("sessionId", sessionID),
				zap.Error(err))
			hub.Unregister(connectionID)
			return
		}

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				break
			}
			dispatcher.Dispatch(ctx, connectionID, data)
		}

		hub.Unregister(connectionID)
		// The request context is tearing down with the socket; cleanup
		// must still run.
		if err := dispatcher.HandleDisconnect(context.Background(), connectionID); err != nil {
			log.Error("disconnect cleanup failed",
				zap.String("connectionId", connectionID),
				zap.Error(err))
		}
	})

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		return infra.Redis.Close()
	}, nil
}
