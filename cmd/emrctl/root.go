package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MaheshReddy-s/emrcore"
	"github.com/MaheshReddy-s/emrcore/config"
)

const (
	envToken   = "EMR_TOKEN"
	envFileKey = "EMR_FILE_KEY"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	token      string

	cfg    *config.Config
	logger *emrcore.ZapLogger
	client *emrcore.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "emrctl",
		Short:         "Query the EMR API and decrypt medical report assets",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch cmd.Name() {
			case "version", "help", "completion":
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a JSON config file")
	rootCmd.PersistentFlags().StringVar(&a.token, "token", "", "bearer token (default $"+envToken+")")

	rootCmd.AddCommand(getCmd(a))
	rootCmd.AddCommand(assetCmd(a))
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("base URL is required (set %s or base_url)", config.EnvBaseURL)
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}

	client := emrcore.New(cfg.ClientOptions(logger)...)
	if err := client.ValidationError(); err != nil {
		_ = logger.Sync()
		return err
	}

	token := a.token
	if token == "" {
		token = os.Getenv(envToken)
	}
	client.SetToken(token)
	client.SetOnUnauthorized(func() {
		logger.Warn("session expired, sign in again")
	})

	a.cfg = cfg
	a.logger = logger
	a.client = client
	return nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), emrcore.GetVersion())
		},
	}
}
