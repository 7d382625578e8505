// The agent joins a channel as a silent participant, taps every remote
// audio track into the analysis service and relays the verdicts to the
// other members. Configured entirely through AGENT_* environment variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/frostbyte/callguard/internal/client"
	"github.com/frostbyte/callguard/internal/wire"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	v := viper.New()
	v.SetEnvPrefix("agent")
	v.AutomaticEnv()
	v.SetDefault("server_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("username", "callguard-agent")
	v.SetDefault("channel", "lobby")
	v.SetDefault("detector_url", "http://localhost:8000/api/analyze")
	v.SetDefault("chunk_seconds", "3s")

	c := client.New(client.Options{
		ServerURL:   v.GetString("server_url"),
		UserID:      v.GetString("user_id"),
		Username:    v.GetString("username"),
		Channel:     v.GetString("channel"),
		DetectorURL: v.GetString("detector_url"),
		ChunkLen:    v.GetDuration("chunk_seconds"),
		STUNServers: v.GetStringSlice("stun_servers"),
		OnVerdict: func(verd wire.Verdict) {
			log.Info().Str("module", "agent").Str("user", verd.UserID).
				Str("label", verd.Label).Float64("confidence", verd.Confidence).Msg("verdict")
		},
	})

	if err := c.Run(ctx); err != nil {
		log.Error().Err(err).Msg("agent stopped")
		os.Exit(1)
	}
	log.Info().Msg("agent exited")
}
