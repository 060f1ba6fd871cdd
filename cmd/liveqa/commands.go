package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/aura-webinar/liveqa/internal/api"
	"github.com/aura-webinar/liveqa/internal/models"
	"github.com/aura-webinar/liveqa/internal/page"
	"github.com/aura-webinar/liveqa/internal/realtime"
	"github.com/aura-webinar/liveqa/internal/render"
	"github.com/aura-webinar/liveqa/internal/statusapi"
	rdb "github.com/aura-webinar/liveqa/pkg/redis"
)

func watchCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Join the organization channel and optionally one class session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Usage: "class session ID to mount"},
			&cli.BoolFlag{Name: "ui", Usage: "draw a terminal dashboard (logs go to --log-file)"},
			&cli.BoolFlag{Name: "no-org", Usage: "do not open the organization channel"},
			&cli.StringFlag{Name: "status-addr", Usage: "serve /health and /state on this address (overrides STATUS_ADDR)"},
			&cli.StringFlag{Name: "redis-addr", Usage: "mirror updates to Redis (overrides REDIS_ADDR)"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := env.cfg, env.logger
			if c.IsSet("status-addr") {
				cfg.Status.Addr = c.String("status-addr")
			}
			if c.IsSet("redis-addr") {
				cfg.Redis.Addr = c.String("redis-addr")
			}
			if c.Bool("ui") && c.String("log-file") == "" {
				return errors.New("--ui draws on the terminal: pass --log-file so logs do not overwrite it")
			}
			if c.Bool("no-org") && c.String("session") == "" {
				return errors.New("nothing to watch: pass --session or drop --no-org")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mirror realtime.Publisher
			if cfg.Redis.Addr != "" {
				client, err := rdb.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				mirror = realtime.NewRedisPubSub(client.Client, logger)
			}
			hub := realtime.NewHub(logger, mirror)
			defer hub.Close()

			renderers := render.Multi{render.NewLog(logger)}
			var dash *render.Dashboard
			if c.Bool("ui") {
				dash = render.NewDashboard(logger)
				renderers = append(renderers, dash)
			}

			endpoints, err := realtime.EndpointsFromConfig(cfg)
			if err != nil {
				return err
			}
			opts := realtime.OptionsFromConfig(cfg, logger)
			opts.Lifecycle = page.Lifecycle(renderers, logger)
			manager := realtime.NewManager(ctx, endpoints, opts)
			defer manager.Close()

			p := page.New(manager, api.NewClientFromConfig(cfg, logger), page.Options{
				Hub:            hub,
				Renderer:       renderers,
				Rules:          page.RulesFromConfig(cfg.UI),
				NoticeTimeout:  cfg.UI.NoticeTimeout,
				RequestTimeout: cfg.API.Timeout,
				Logger:         logger,
			})
			if !c.Bool("no-org") {
				if err := p.Open(); err != nil {
					return err
				}
			}
			if id := c.String("session"); id != "" {
				if _, err := p.Mount(id); err != nil {
					return err
				}
			}

			statusDone := make(chan struct{})
			if cfg.Status.Addr != "" {
				go func() {
					defer close(statusDone)
					if err := statusapi.New(hub, manager, logger).Run(ctx, cfg.Status.Addr); err != nil {
						logger.Error("status api", zap.Error(err))
					}
				}()
			} else {
				close(statusDone)
			}

			if dash != nil {
				err = dash.Run(ctx, func() render.Controls {
					if v := p.View(); v != nil {
						return v
					}
					return nil
				})
				stop()
			} else {
				<-ctx.Done()
			}
			logger.Info("shutting down")
			<-statusDone
			return err
		},
	}
}

func tailCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:  "tail",
		Usage: "Print updates mirrored to Redis by running watchers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "redis-addr", Usage: "overrides REDIS_ADDR"},
			&cli.StringFlag{Name: "topic", Value: "*", Usage: "topic pattern, e.g. session:* or organization"},
		},
		Action: func(c *cli.Context) error {
			cfg, logger := env.cfg, env.logger
			if c.IsSet("redis-addr") {
				cfg.Redis.Addr = c.String("redis-addr")
			}
			if cfg.Redis.Addr == "" {
				return errors.New("tail needs REDIS_ADDR or --redis-addr")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := rdb.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			out := render.NewLog(logger)
			cancel, err := realtime.NewRedisPubSub(client.Client, logger).SubscribeUpdates(ctx, c.String("topic"), out.Render)
			if err != nil {
				return err
			}
			defer cancel()
			<-ctx.Done()
			return nil
		},
	}
}

func askCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Submit a question to a class session",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Aliases: []string{"s"}, Required: true, Usage: "class session ID"},
		},
		Action: func(c *cli.Context) error {
			text := strings.Join(c.Args().Slice(), " ")
			return withClient(c.Context, env, func(ctx context.Context, client *api.Client) error {
				if err := client.SubmitQuestion(ctx, c.String("session"), text); err != nil {
					return err
				}
				env.logger.Info("question submitted", zap.String("session_id", c.String("session")))
				return nil
			})
		},
	}
}

func voteCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "Upvote a question",
		ArgsUsage: "<questionID>",
		Action: func(c *cli.Context) error {
			id, err := questionArg(c)
			if err != nil {
				return err
			}
			return withClient(c.Context, env, func(ctx context.Context, client *api.Client) error {
				err := client.Upvote(ctx, id)
				switch {
				case errors.Is(err, api.ErrAlreadyVoted):
					env.logger.Info("already voted", zap.Int64("question_id", int64(id)))
					return nil
				case err != nil:
					return err
				}
				env.logger.Info("vote recorded", zap.Int64("question_id", int64(id)))
				return nil
			})
		},
	}
}

func answerCmd(env *appEnv) *cli.Command {
	return &cli.Command{
		Name:      "answer",
		Usage:     "Mark a question answered (moderators only)",
		ArgsUsage: "<questionID>",
		Action: func(c *cli.Context) error {
			id, err := questionArg(c)
			if err != nil {
				return err
			}
			return withClient(c.Context, env, func(ctx context.Context, client *api.Client) error {
				if err := client.MarkAnswered(ctx, id); err != nil {
					return err
				}
				env.logger.Info("question marked answered", zap.Int64("question_id", int64(id)))
				return nil
			})
		},
	}
}

func withClient(parent context.Context, env *appEnv, fn func(ctx context.Context, client *api.Client) error) error {
	ctx, cancel := context.WithTimeout(parent, env.cfg.API.Timeout)
	defer cancel()
	return fn(ctx, api.NewClientFromConfig(env.cfg, env.logger))
}

func questionArg(c *cli.Context) (models.QuestionID, error) {
	if c.NArg() != 1 {
		return 0, fmt.Errorf("expected one question ID, got %d arguments", c.NArg())
	}
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("question ID %q: %w", c.Args().First(), err)
	}
	return models.QuestionID(id), nil
}
