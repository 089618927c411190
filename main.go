package main

import (
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"notesync/config/database"
	"notesync/pkg/logger"
	"notesync/router"
	"notesync/socket"
)

func main() {
	err := godotenv.Load()

	logger.Init()
	defer logger.Log.Sync()

	if err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Sugar.Fatal("JWT_SECRET environment variable not set")
	}

	db := database.Connect()
	defer db.Close()

	hub := socket.NewHub()
	go hub.Run()

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger.Sugar.Infof("Backend listening on %s", addr)
	if err := http.ListenAndServe(addr, router.Setup(db, hub, jwtSecret)); err != nil {
		logger.Sugar.Fatalf("Server exited: %v", err)
	}
}
