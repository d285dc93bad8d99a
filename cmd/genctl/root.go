package main

import (
	"os"

	"github.com/spf13/cobra"

	"genpipe/internal/backend"
	"genpipe/internal/infra"
)

type commandContext struct {
	proxyURL string
	identity string
	verbose  bool
}

func (c *commandContext) resolve() error {
	if c.proxyURL != "" && c.identity != "" {
		return nil
	}
	cfg, err := infra.LoadClientConfig()
	if err != nil {
		return err
	}
	if c.proxyURL == "" {
		c.proxyURL = cfg.ProxyBaseURL
	}
	if c.identity == "" {
		c.identity = cfg.Identity
	}
	return nil
}

func (c *commandContext) logger() infra.Logger {
	if c.verbose {
		return infra.NewLogger("development")
	}
	return infra.NewLogger("production")
}

func (c *commandContext) client() (*backend.Client, error) {
	logger := c.logger()
	return backend.NewClient(backend.Options{
		BaseURL:      c.proxyURL,
		SessionToken: os.Getenv("PIPELINE_SESSION_TOKEN"),
		Logger:       &logger,
	})
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "genctl",
		Short:         "Drive media generation attempts through the edge proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.resolve()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.proxyURL, "proxy-url", "", "Edge proxy base URL (default $PROXY_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&ctx.identity, "identity", "", "Billing identity (default $PIPELINE_IDENTITY)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newBalanceCommand(ctx))

	return rootCmd
}
