package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/internal/seeder"
	"github.com/telhawk-systems/exception-monitor/common/messaging"
	natsclient "github.com/telhawk-systems/exception-monitor/common/messaging/nats"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish generated exception events to the bus",
	Long: `Generate realistic exception events and publish them to the bus the
monitor consumes. Events are spread over --spread before now so the
dashboards and time ranges have data to show.`,
	Example: `  exmon seed --count 500 --spread 7d
  exmon seed --nats nats://bus:4222 --partitions 3 --interval 200ms`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := activeProfile(cmd)
		if err != nil {
			return err
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

		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		seed, _ := cmd.Flags().GetInt64("seed")
		spreadFlag, _ := cmd.Flags().GetString("spread")
		spread, err := parseSpread(spreadFlag)
		if err != nil {
			return err
		}
		if count <= 0 {
			return fmt.Errorf("--count must be positive")
		}

		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = p.NATSURL
		natsCfg.Name = "exmon-seed"
		js, err := natsclient.NewJetStreamClient(natsCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", p.NATSURL, err)
		}
		defer js.Close()

		stream := natsclient.DefaultStreamConfig(messaging.DefaultStream, messaging.StreamSubjects(p.Topic))
		if _, err := js.CreateOrUpdateStream(cmd.Context(), stream); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}

		gen := seeder.NewGenerator(seed)
		gen.Spread = spread

		out := printer(cmd)
		out.Info("Publishing %d events to %s on %s (%d partitions)", count, p.Topic, p.NATSURL, p.Partitions)

		runner := seeder.NewRunner(seeder.Config{
			Count:      count,
			Topic:      p.Topic,
			Partitions: p.Partitions,
			Interval:   interval,
		}, gen, js)
		step := max(count/10, 1)
		runner.Progress = func(done, total int) {
			if done%step == 0 || done == total {
				out.Info("  %d/%d", done, total)
			}
		}

		res, err := runner.Run(cmd.Context())
		if res.Failed > 0 {
			out.Warn("%d events failed to publish", res.Failed)
		}
		if err != nil {
			return err
		}
		out.Success("Published %d events", res.Sent)
		return nil
	},
}

// parseSpread accepts Go durations plus a day suffix: 90m, 12h, 7d.
func parseSpread(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid --spread %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid --spread %q", s)
	}
	return d, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().Int("count", 100, "number of events")
	seedCmd.Flags().String("spread", "24h", "distribute timestamps over this window before now (e.g. 90m, 7d)")
	seedCmd.Flags().Duration("interval", 0, "pause between events")
	seedCmd.Flags().Int64("seed", 0, "random seed for repeatable data")
	seedCmd.Flags().String("nats", "", "NATS URL, overrides the profile")
	seedCmd.Flags().String("topic", messaging.DefaultTopic, "bus topic")
	seedCmd.Flags().Int("partitions", 1, "topic partitions")
}
