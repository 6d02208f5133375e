package command

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/eoncord/chatsync-go/chatsync"
	"github.com/eoncord/chatsync-go/chatsync/rest"
	"github.com/eoncord/chatsync-go/chatsync/session"
	"github.com/eoncord/chatsync-go/config"
)

var errNoUser = errors.New("user_id is not set; run \"chatsync login\" and export the printed variables")

// appContext is the per-invocation state shared by subcommands.
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger
	api    *rest.Client
}

func loadApp(cmd *cobra.Command) (*appContext, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, !cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	api := rest.NewClient(cfg.APIURL)
	api.SetToken(cfg.Token)
	return &appContext{cfg: cfg, logger: logger, api: api}, nil
}

func (a *appContext) self() (chatsync.Author, error) {
	if a.cfg.UserID == "" {
		return chatsync.Author{}, errNoUser
	}
	return chatsync.Author{ID: a.cfg.UserID, DisplayName: a.cfg.Username}, nil
}

// newSession builds a session over a fresh push client. The caller owns
// both and must Close the session and Disconnect the client.
func (a *appContext) newSession(reg prometheus.Registerer) (*session.Session, *chatsync.Client, error) {
	self, err := a.self()
	if err != nil {
		return nil, nil, err
	}
	client := chatsync.NewClient(a.cfg.ClientConfig())
	client.SetLogger(a.logger)

	sess, err := session.New(session.Options{
		Transport:        client,
		API:              a.api,
		Self:             self,
		PageSize:         a.cfg.PageSize,
		MaxContentLength: a.cfg.MaxContentLength,
		TypingTTL:        a.cfg.TypingTTL.Duration(),
		TypingThrottle:   a.cfg.TypingThrottle.Duration(),
		Logger:           a.logger,
		Registerer:       reg,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}
	return sess, client, nil
}
