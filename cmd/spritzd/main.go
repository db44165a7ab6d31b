package main

import (
	"log"
	"time"

	"github.com/spritzapp/spritz/internal/account"
	"github.com/spritzapp/spritz/internal/analytics"
	"github.com/spritzapp/spritz/internal/api"
	"github.com/spritzapp/spritz/internal/config"
	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/invite"
	"github.com/spritzapp/spritz/internal/points"
	"github.com/spritzapp/spritz/internal/websocket"
	"github.com/spritzapp/spritz/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(logger.INFO)
	if err := logger.EnableFileLogging(cfg.Server.LogDir); err != nil {
		log.Fatalf("Failed to enable file logging: %v", err)
	}

	logger.Info("Spritz ledger starting...")

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer conn.Close()

	if err := db.RunMigrations(conn, cfg.Database.MigrationsPath); err != nil {
		logger.Fatal("Failed to run migrations: %v", err)
	}

	pointsSvc := points.NewService(conn, cfg.Rewards)
	inviteSvc := invite.NewService(conn, cfg.Rewards)
	accountSvc := account.NewService(conn, inviteSvc, cfg.Chat)
	analyticsSvc := analytics.NewService(conn, pointsSvc)

	wsManager := websocket.NewManager()
	go wsManager.Run()

	go broadcastLeaderboard(pointsSvc, wsManager)

	h := api.NewHandler(accountSvc, inviteSvc, pointsSvc, analyticsSvc, wsManager)
	r := api.SetupRouter(h, cfg.Admin)

	logger.Info("Listening on %s", cfg.Server.ListenAddr)
	if err := r.Run(cfg.Server.ListenAddr); err != nil {
		logger.Fatal("Failed to run server: %v", err)
	}
}

// broadcastLeaderboard pushes a leaderboard snapshot to the dashboard feed
// once a minute.
func broadcastLeaderboard(pointsSvc points.Service, wsManager *websocket.Manager) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		leaderboard, err := pointsSvc.GetLeaderboard(100)
		if err != nil {
			logger.Error("Failed to get leaderboard: %v", err)
			continue
		}
		if err := wsManager.BroadcastLeaderboard(leaderboard); err != nil {
			logger.Error("Failed to broadcast leaderboard: %v", err)
		}
	}
}
