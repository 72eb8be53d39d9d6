package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulih-app/coach/internal/catalog"
	"github.com/pulih-app/coach/internal/config"
)

type commandContext struct {
	configFlag *string

	once   sync.Once
	config *config.Config
	logger *zap.Logger
	err    error
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		cfg, err := config.Load(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		logger, err := config.NewLogger(cfg.Log)
		if err != nil {
			c.err = err
			return
		}
		c.config, c.logger = cfg, logger
	})
	return c.err
}

// catalogClient returns an authenticated REST client, requesting a token
// from the server when none is configured.
func (c *commandContext) catalogClient(ctx context.Context) (*catalog.Client, error) {
	client, err := catalog.NewClient(c.config.Server.APIBaseURL, c.config.Server.Token, c.logger)
	if err != nil {
		return nil, err
	}
	if c.config.Server.Token == "" {
		if c.config.Session.UserID == "" {
			return nil, fmt.Errorf("set PULIH_TOKEN or PULIH_USER_ID to authenticate")
		}
		resp, err := client.RequestToken(ctx, c.config.Session.UserID)
		if err != nil {
			return nil, fmt.Errorf("requesting token: %w", err)
		}
		c.config.Server.Token = resp.Token
	}
	return client, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "coach",
		Short:         "Pulih live coaching session client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.ensure()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.logger != nil {
				_ = ctx.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newExerciseCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))

	return rootCmd
}
