package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/liveqa/config"
)

const appName = "liveqa"

var version = "0.0.0"

// appEnv is filled in by the Before hook and shared by every command.
type appEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	env := &appEnv{}
	return &cli.App{
		Name:    appName,
		Usage:   "Follow a live classroom Q&A session from the terminal",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-url", Usage: "classroom server URL (overrides LIVE_BASE_URL)"},
			&cli.StringFlag{Name: "cookie", Usage: "session cookie forwarded on every request (overrides AUTH_COOKIE)"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error (overrides LOG_LEVEL)"},
			&cli.StringFlag{Name: "log-file", Usage: "write logs to this file instead of stderr"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if c.IsSet("base-url") {
				cfg.Server.BaseURL = c.String("base-url")
			}
			if c.IsSet("cookie") {
				cfg.Server.AuthCookie = c.String("cookie")
			}
			if c.IsSet("log-level") {
				cfg.LogLevel = c.String("log-level")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, c.String("log-file"))
			if err != nil {
				return err
			}
			env.cfg, env.logger = cfg, logger
			return nil
		},
		After: func(*cli.Context) error {
			if env.logger != nil {
				_ = env.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			watchCmd(env),
			tailCmd(env),
			askCmd(env),
			voteCmd(env),
			answerCmd(env),
		},
	}
}

func newLogger(level, file string) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "timestamp"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = lvl
	if file != "" {
		zcfg.OutputPaths = []string{file}
	}
	return zcfg.Build()
}
