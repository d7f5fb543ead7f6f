package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/internal/client"
	"github.com/telhawk-systems/exception-monitor/cli/pkg/output"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Exception statistics",
	Long:  "Show the dashboard summary and the per component, project and environment breakdowns.",
}

var statsDashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Totals, top groups and recent exceptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		d, err := c.Dashboard(cmd.Context(), rangeFrom(cmd))
		if err != nil {
			return err
		}

		out := printer(cmd)
		if handled, err := out.Data(d); handled {
			return err
		}

		summary := output.NewTable("TOTAL", "LAST 24H", "LAST HOUR", "IN RANGE")
		summary.AddRow(count(d.TotalExceptions), count(d.ExceptionsLast24h), count(d.ExceptionsLastHour), count(d.ExceptionsInRange))
		summary.Render(out.Out)

		groupTable(out, "Exception types", "TYPE", d.ExceptionTypeStats)
		groupTable(out, "Projects", "PROJECT", d.ProjectStats)
		groupTable(out, "Components", "COMPONENT", d.ComponentStats)
		groupTable(out, "Environments", "ENVIRONMENT", d.EnvironmentStats)

		fmt.Fprintln(out.Out)
		out.Heading("Recent exceptions")
		recent := output.NewTable("TIMESTAMP", "TYPE", "MESSAGE", "ID")
		for _, ex := range d.RecentExceptions {
			recent.AddRow(ex.Timestamp, ex.ExceptionType, output.Truncate(ex.Message, 60), ex.ID)
		}
		renderOrEmpty(out, recent, "No exceptions")
		return nil
	},
}

var statsComponentsCmd = &cobra.Command{
	Use:   "components",
	Short: "Exceptions per component and the pods of the busiest one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		b, err := c.Components(cmd.Context(), rangeFrom(cmd))
		if err != nil {
			return err
		}

		out := printer(cmd)
		if handled, err := out.Data(b); handled {
			return err
		}

		groupTable(out, "Components", "COMPONENT", b.ComponentStats)
		if b.SelectedComponent == "" {
			return nil
		}
		fmt.Fprintln(out.Out)
		out.Heading("Pods of " + b.SelectedComponent)
		pods := output.NewTable("POD", "POD IP", "COUNT")
		for _, p := range b.ComponentPods {
			pods.AddRow(output.OrNone(p.PodName), output.OrNone(p.PodIP), count(p.Count))
		}
		renderOrEmpty(out, pods, "No data")
		return nil
	},
}

var statsProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Exceptions per project and per environment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		b, err := c.Projects(cmd.Context(), rangeFrom(cmd))
		if err != nil {
			return err
		}

		out := printer(cmd)
		if handled, err := out.Data(b); handled {
			return err
		}

		groupTable(out, "Projects", "PROJECT", b.ProjectStats)
		for _, g := range b.ProjectsByEnvironment {
			groupTable(out, "Projects in "+g.Environment, "PROJECT", g.Counts)
		}
		return nil
	},
}

var statsEnvironmentsCmd = &cobra.Command{
	Use:   "environments",
	Short: "Exceptions per environment and its components",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		b, err := c.Environments(cmd.Context(), rangeFrom(cmd))
		if err != nil {
			return err
		}

		out := printer(cmd)
		if handled, err := out.Data(b); handled {
			return err
		}

		groupTable(out, "Environments", "ENVIRONMENT", b.EnvironmentStats)
		for _, g := range b.ComponentsByEnvironment {
			groupTable(out, "Components in "+g.Environment, "COMPONENT", g.Counts)
		}
		return nil
	},
}

func count(n int64) string {
	return strconv.FormatInt(n, 10)
}

func groupTable(out *output.Printer, title, column string, counts []client.GroupCount) {
	fmt.Fprintln(out.Out)
	out.Heading(title)
	tbl := output.NewTable(column, "COUNT")
	for _, c := range counts {
		tbl.AddRow(output.OrNone(c.Key), count(c.Count))
	}
	renderOrEmpty(out, tbl, "No data")
}

func renderOrEmpty(out *output.Printer, tbl *output.Table, empty string) {
	if tbl.Len() == 0 {
		fmt.Fprintln(out.Out, "  "+empty)
		return
	}
	tbl.Render(out.Out)
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.AddCommand(statsDashboardCmd, statsComponentsCmd, statsProjectsCmd, statsEnvironmentsCmd)
	for _, c := range statsCmd.Commands() {
		addRangeFlags(c)
	}
}
