package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/studyden/backend/internal/api"
	"github.com/studyden/backend/internal/auth"
	"github.com/studyden/backend/internal/config"
	"github.com/studyden/backend/internal/db"
	"github.com/studyden/backend/internal/room"
	"github.com/studyden/backend/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if os.Getenv("LOG_LEVEL") == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg := config.Load()

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer database.Close()

	authService := auth.NewService(database, cfg.JWT.Secret, cfg.JWT.ExpiresIn)

	dir := room.NewDirectory(database, room.Config{
		WorkSeconds:      int(cfg.Pomodoro.Work.Seconds()),
		BreakSeconds:     int(cfg.Pomodoro.Break.Seconds()),
		LongBreakSeconds: int(cfg.Pomodoro.LongBreak.Seconds()),
		LongBreakEvery:   cfg.Pomodoro.LongBreakEvery,
		TickInterval:     cfg.Pomodoro.TickInterval,
	})

	apiHandler := api.New(dir, authService, database)
	wsHandler := ws.NewHandler(dir, authService, cfg.Limits.WSEventsPerSecond, cfg.Limits.WSBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWs)
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)
	mux.HandleFunc("/api/auth/", apiHandler.AuthRouter)
	mux.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	mux.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      corsMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("🫖 studyden server starting")
		log.Info().Msg("endpoints: /ws?room={id}&token={jwt}, /health, /api/stats, /api/auth/*, /api/rooms")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
