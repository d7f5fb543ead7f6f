package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/internal/config"
	"github.com/telhawk-systems/exception-monitor/cli/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage monitor connection profiles",
}

var profileSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Create or update a profile and make it current",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := &config.Profile{}
		if existing, ok := cfg.Profiles[args[0]]; ok {
			*p = *existing
		}
		if cmd.Flags().Changed("url") {
			p.MonitorURL, _ = cmd.Flags().GetString("url")
		}
		if cmd.Flags().Changed("nats") {
			p.NATSURL, _ = cmd.Flags().GetString("nats")
		}
		if cmd.Flags().Changed("topic") {
			p.Topic, _ = cmd.Flags().GetString("topic")
		}
		if cmd.Flags().Changed("partitions") {
			p.Partitions, _ = cmd.Flags().GetInt("partitions")
		}
		if err := cfg.SaveProfile(args[0], p); err != nil {
			return err
		}
		printer(cmd).Success("Profile %s saved", args[0])
		return nil
	},
}

var profileUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Switch the current profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.UseProfile(args[0]); err != nil {
			return err
		}
		printer(cmd).Success("Using profile %s", args[0])
		return nil
	},
}

var profileRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Delete a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RemoveProfile(args[0]); err != nil {
			return err
		}
		printer(cmd).Success("Profile %s removed", args[0])
		return nil
	},
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := printer(cmd)
		if handled, err := out.Data(cfg); handled {
			return err
		}
		names := cfg.ProfileNames()
		if len(names) == 0 {
			out.Warn("No profiles; using %s", config.DefaultMonitorURL)
			return nil
		}
		tbl := output.NewTable("", "NAME", "MONITOR", "NATS", "TOPIC", "PARTITIONS")
		for _, name := range names {
			p, err := cfg.GetProfile(name)
			if err != nil {
				return err
			}
			current := ""
			if name == cfg.CurrentProfile {
				current = "*"
			}
			tbl.AddRow(current, name, p.MonitorURL, p.NATSURL, p.Topic, count(int64(p.Partitions)))
		}
		tbl.Render(out.Out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileSetCmd, profileUseCmd, profileRemoveCmd, profileListCmd)

	profileSetCmd.Flags().String("nats", "", "NATS URL")
	profileSetCmd.Flags().String("topic", "", "bus topic")
	profileSetCmd.Flags().Int("partitions", 0, "topic partitions")
}
