package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/yahabaat/voiceroom/internal/adapters/http"
	"github.com/yahabaat/voiceroom/internal/config"
	"github.com/yahabaat/voiceroom/internal/presence"
	"github.com/yahabaat/voiceroom/internal/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := presence.NewStore(rdb)
	dir := presence.NewDirectory(store)
	issuer := token.NewIssuer(cfg.APIKey, cfg.APISecret)

	go sweepLoop(ctx, store, dir, cfg.PresenceTTL, cfg.SweepPeriod)

	r := router.SetupRouter(ctx, cfg, issuer, store, dir)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("voiceroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis close")
	}
	log.Info().Msg("Server exited gracefully")
}

// sweepLoop reaps presence entries left behind by crashed tabs. Explicit
// leaves clean up after themselves; this is the second chance.
func sweepLoop(ctx context.Context, store *presence.Store, dir *presence.Directory, ttl, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := dir.RoomIDs(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("sweep: listing rooms")
				continue
			}
			for _, id := range ids {
				if _, err := store.Sweep(ctx, id, ttl); err != nil {
					log.Warn().Str("room", string(id)).Err(err).Msg("sweep failed")
				}
			}
		}
	}
}
