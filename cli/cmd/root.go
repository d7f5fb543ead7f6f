package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/internal/client"
	"github.com/telhawk-systems/exception-monitor/cli/internal/config"
	"github.com/telhawk-systems/exception-monitor/cli/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "exmon",
	Short: "Exception monitor CLI",
	Long: `exmon is the command-line interface of the exception monitor.

Search and inspect captured exceptions, view statistics and seed the bus
with generated events from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		output.New(os.Stdout, os.Stderr, "").Error("%v", err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.exmon/config.yaml)")
	rootCmd.PersistentFlags().String("profile", "", "profile to use (default: current profile)")
	rootCmd.PersistentFlags().StringP("output", "o", output.FormatTable, "output format: table, json, yaml")
	rootCmd.PersistentFlags().String("url", "", "monitor base URL, overrides the profile")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

func printer(cmd *cobra.Command) *output.Printer {
	format, _ := cmd.Flags().GetString("output")
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), format)
}

func activeProfile(cmd *cobra.Command) (*config.Profile, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	name, _ := cmd.Flags().GetString("profile")
	p, err := cfg.GetProfile(name)
	if err != nil {
		return nil, err
	}
	if u, _ := cmd.Flags().GetString("url"); u != "" {
		p.MonitorURL = u
	}
	return p, nil
}

func monitorClient(cmd *cobra.Command) (*client.MonitorClient, error) {
	p, err := activeProfile(cmd)
	if err != nil {
		return nil, err
	}
	return client.NewMonitorClient(p.MonitorURL), nil
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("range", "", "time range: 5m, 15m, 30m, 1h, 6h, 12h, 1d, 7d, 30d")
	cmd.Flags().String("start", "", "custom range start, e.g. 2024-06-01T09:00")
	cmd.Flags().String("end", "", "custom range end")
}

// rangeFrom reads the range flags. Giving --start or --end selects a custom
// range.
func rangeFrom(cmd *cobra.Command) client.Range {
	token, _ := cmd.Flags().GetString("range")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	if start != "" || end != "" {
		token = "custom"
	}
	return client.Range{Token: token, Start: start, End: end}
}
