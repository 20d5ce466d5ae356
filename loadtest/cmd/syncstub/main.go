// Command syncstub is a stand-in app_sync webhook for load runs. Point
// APP_SYNC_WEBHOOK_URL at http://host:port/sync?run_id=<run>.
package main

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/KasumiMercury/primind-bulk-operations/loadtest/internal/stub"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	r := gin.New()
	r.Use(gin.Recovery())
	stub.NewHandler(stub.NewRunStorage()).Register(r)

	slog.Info("starting sync stub", slog.String("port", port))
	if err := r.Run(":" + port); err != nil {
		slog.Error("sync stub exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
