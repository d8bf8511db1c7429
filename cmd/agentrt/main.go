package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aixgo-dev/agentrt"
	_ "github.com/aixgo-dev/agentrt/agents"
	"github.com/aixgo-dev/agentrt/pkg/config"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentrt",
		Short:         "Run multi-agent systems in real time or as discrete-event simulations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newTypesCmd(), newVersionCmd())
	return root
}

func configFlag(cmd *cobra.Command, path *string) {
	cmd.Flags().StringVarP(path, "config", "c", getEnv("CONFIG_FILE", "config/agents.yaml"), "Agent configuration file")
}

func newRunCmd() *cobra.Command {
	var (
		path     string
		platform string
		logLevel string
		runFor   time.Duration
		speed    float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the platform and run the configured agents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("platform") {
				cfg.Platform.Type = strings.ToLower(platform)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("run-for") {
				cfg.Platform.RunFor = config.Duration{Duration: runFor}
			}
			if cmd.Flags().Changed("speed") {
				cfg.Platform.Speed = speed
			}

			rt, err := agentrt.New(cfg)
			if err != nil {
				return err
			}
			rt.Logger().Info("Starting agentrt", "version", Version, "config", path)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.Run(ctx)
		},
	}
	configFlag(cmd, &path)
	cmd.Flags().StringVar(&platform, "platform", "", "Override the platform type (realtime or discrete)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the log level")
	cmd.Flags().DurationVar(&runFor, "run-for", 0, "Stop after this much platform time")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Discrete-event speed in simulated seconds per real second")
	return cmd
}

func newValidateCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file without running it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(path)
			if err != nil {
				return err
			}
			if missing := agentrt.Missing(cfg, nil); len(missing) > 0 {
				return fmt.Errorf("unknown agent types: %s", strings.Join(missing, ", "))
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s platform, container %q, %d agents\n",
				path, cfg.Platform.Type, cfg.Container.Name, len(cfg.Agents))
			return err
		},
	}
	configFlag(cmd, &path)
	return cmd
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the registered agent types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printLines(cmd.OutOrStdout(), agentrt.Types())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printLines(cmd.OutOrStdout(), []string{"agentrt " + Version})
		},
	}
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
