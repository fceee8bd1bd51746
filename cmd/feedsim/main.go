package main

import (
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v2"
)

// feedsim is an in-memory record gateway for developing against the
// clipfeed client without a real backend. Nothing survives a restart.
func main() {
	app := cli.App{
		Name:   "feedsim",
		Usage:  "in-memory record gateway simulator",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				EnvVars: []string{"FEEDSIM_ADDR"},
				Value:   ":8100",
			},
			&cli.StringFlag{
				Name:     "jwt-secret",
				EnvVars:  []string{"FEEDSIM_JWT_SECRET"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"FEEDSIM_LOG_LEVEL"},
				Value:   "info",
			},
		},
		ErrWriter: os.Stderr,
	}

	app.Run(os.Args)
}

var run = func(cmd *cli.Context) error {
	var level slog.Level
	switch cmd.String("log-level") {
	case "debug":
		level = slog.LevelDebug
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

	s := newServer(l, []byte(cmd.String("jwt-secret")))

	l.Info("starting feedsim", "addr", cmd.String("addr"))

	return s.listen(cmd.String("addr"))
}
