package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xmlongan/jmomden/internal/config"
)

// cli holds state shared by all subcommands
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:     appName,
		Short:   "Joint density approximation from bivariate moments",
		Version: version,
		Long: `jmomden approximates the joint density of two correlated random variables
from their joint moments. The variables are decorrelated, each marginal is
fitted by a Pearson distribution, and orthogonal polynomial corrections
restore the joint structure.

Models come from a moments file holding either a raw moment table, a
bivariate normal or a mixture of bivariate normals.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to YAML configuration file")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level (debug|info|warn|error)")
	flags.StringVar(&c.logFormat, "log-format", "", "Log format (auto|console|json)")

	root.AddCommand(
		c.reportCmd(),
		c.jointCmd(),
		c.condCmd(),
		c.serveCmd(),
		versionCmd(),
	)
	return root
}

// setup loads configuration and configures the global logger
func (c *cli) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	return configureLogging(cfg.Log, os.Stderr)
}

// configureLogging uses a console writer on a terminal and JSON otherwise
func configureLogging(lc config.LogConfig, w *os.File) error {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	console := lc.Format == "console" || ((lc.Format == "auto" || lc.Format == "") && term.IsTerminal(int(w.Fd())))
	if console {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Str("app", appName).Logger()
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}
