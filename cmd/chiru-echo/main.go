package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Fuyukai/chiru"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// chiru-echo is a small demonstration bot: it echoes any message starting
// with "echo " back to the channel it came from.

func main() {
	_ = godotenv.Load()

	app := cli.App{
		Name:  "chiru-echo",
		Usage: "A gateway echo bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "token",
				EnvVars: []string{"DISCORD_TOKEN"},
				Usage:   "The bot token to connect with",
			},
			&cli.StringFlag{
				Name:  "level",
				Value: "info",
				Usage: "The minimum log level",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Value: "",
				Usage: "File to write rotated logs to, in addition to stdout",
			},
			&cli.StringFlag{
				Name:  "prometheus-address",
				Value: "",
				Usage: "Address to serve prometheus metrics on, empty to disable",
			},
			&cli.IntFlag{
				Name:  "shards",
				Value: 0,
				Usage: "Shard count, 0 to use the gateway's recommendation",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	level, err := zerolog.ParseLevel(cCtx.String("level"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var writer zerolog.LevelWriter = zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stdout},
	)

	if logFile := cCtx.String("log-file"); logFile != "" {
		writer = zerolog.MultiLevelWriter(
			zerolog.ConsoleWriter{Out: os.Stdout},
			&lumberjack.Logger{
				Filename:   logFile,
				MaxSize:    25,
				MaxBackups: 5,
				MaxAge:     7,
			},
		)
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if address := cCtx.String("prometheus-address"); address != "" {
		http.Handle("/metrics", promhttp.Handler())

		go func() {
			logger.Info().Str("address", address).Msg("Serving prometheus metrics")

			if err := http.ListenAndServe(address, nil); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	configuration := chiru.NewConfiguration(cCtx.String("token"))
	configuration.ShardCount = int32(cCtx.Int("shards"))

	client, err := chiru.NewClient(logger, configuration)
	if err != nil {
		return err
	}

	dispatcher := chiru.NewStatefulDispatcher(client)

	dispatcher.AddHandler("Ready", func(ctx context.Context, evtCtx *chiru.EventContext, event chiru.DispatchedEvent) error {
		logger.Info().
			Int("guilds", evtCtx.Client.Cache.GuildCount()).
			Msg("Bot is ready")

		return nil
	})

	dispatcher.AddHandler("MessageCreated", func(ctx context.Context, evtCtx *chiru.EventContext, event chiru.DispatchedEvent) error {
		message := event.(chiru.MessageCreated).Message

		text, ok := strings.CutPrefix(message.Content, "echo ")
		if !ok {
			return nil
		}

		_, err := message.Respond(ctx, text)

		return err
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return client.Run(ctx, dispatcher)
}
