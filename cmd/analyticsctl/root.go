package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/logger"
)

const defaultServerURL = "http://localhost:8095"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	serverURL string
	debug     bool
}

func (o *globalOptions) logger() (logger.Logger, error) {
	level := "info"
	if o.debug {
		level = "debug"
	}
	return logger.New(logger.Config{
		Level:       level,
		Format:      logger.FormatConsole,
		Development: o.debug,
		OutputPaths: []string{"stderr"},
	})
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "analyticsctl",
		Short:         "Operate a visitor-analytics server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	serverURL := os.Getenv("VISITOR_ANALYTICS_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	root.PersistentFlags().StringVar(&opts.serverURL, "url", serverURL, "visitor-analytics base URL")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newSimulateCommand(opts),
		newReportCommand(opts),
		newTokenCommand(),
	)
	return root
}
