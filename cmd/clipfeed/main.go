package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/haileyok/clipfeed"
	"github.com/haileyok/clipfeed/gateway"
	"github.com/haileyok/clipfeed/session"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:   "clipfeed",
		Usage:  "feed client core for the clipfeed record gateway",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gateway-host",
				EnvVars: []string{"CLIPFEED_GATEWAY_HOST"},
				Value:   "http://localhost:8100",
			},
			&cli.StringFlag{
				Name:    "realtime-host",
				EnvVars: []string{"CLIPFEED_REALTIME_HOST"},
				Value:   "ws://localhost:8100",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				EnvVars: []string{"CLIPFEED_METRICS_ADDR"},
				Value:   ":8001",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"CLIPFEED_LOG_LEVEL"},
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "cursor-file",
				EnvVars:  []string{"CLIPFEED_CURSOR_FILE"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "session-token",
				EnvVars: []string{"CLIPFEED_SESSION_TOKEN"},
			},
		},
		ErrWriter: os.Stderr,
	}

	app.Run(os.Args)
}

var run = func(cmd *cli.Context) error {
	ctx := cmd.Context
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var level slog.Level
	switch cmd.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	l := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	sess := session.NewStore(&session.Args{
		Host:   cmd.String("gateway-host"),
		Logger: l,
	})

	if token := cmd.String("session-token"); token != "" {
		if err := sess.SetToken(token); err != nil {
			return err
		}
	}

	gw := gateway.NewClient(&gateway.Args{
		Host:        cmd.String("gateway-host"),
		TokenSource: sess.Token,
	})

	c, err := clipfeed.New(ctx, &clipfeed.Args{
		Logger:       l,
		Gateway:      gw,
		Session:      sess,
		RealtimeHost: cmd.String("realtime-host"),
		CursorFile:   cmd.String("cursor-file"),
		MetricsAddr:  cmd.String("metrics-addr"),
	})
	if err != nil {
		panic(err)
	}

	go func() {
		exitSignals := make(chan os.Signal, 1)
		signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)

		sig := <-exitSignals

		l.Info("received os exit signal", "signal", sig)
		cancel()
	}()

	if err := c.Run(ctx); err != nil {
		return err
	}

	return nil
}
