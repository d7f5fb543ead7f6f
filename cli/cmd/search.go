package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/internal/client"
	"github.com/telhawk-systems/exception-monitor/cli/pkg/output"
)

var searchCmd = &cobra.Command{
	Use:   "search [advanced query]",
	Short: "Search captured exceptions",
	Long: `Search exceptions with structured filters and an optional advanced query.

The advanced query matches columns by name, additional data by
additional_data.<key>, request headers by header.<name> and request
parameters by param.<name>. Terms combine with AND, OR and NOT.`,
	Example: `  exmon search --env PROD --range 1h
  exmon search 'exceptionType:"TimeoutException" AND NOT environment:"UAT"'
  exmon search 'header.X-Tenant:"acme"' --start 2024-06-01T09:00 -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}

		params := client.SearchParams{Range: rangeFrom(cmd)}
		params.ProjectName, _ = cmd.Flags().GetString("project")
		params.ExceptionType, _ = cmd.Flags().GetString("type")
		params.Environment, _ = cmd.Flags().GetString("env")
		params.ComponentName, _ = cmd.Flags().GetString("component")
		params.ServiceName, _ = cmd.Flags().GetString("service")
		params.Method, _ = cmd.Flags().GetString("method")
		params.Page, _ = cmd.Flags().GetInt("page")
		params.Size, _ = cmd.Flags().GetInt("size")
		if len(args) == 1 {
			params.AdvancedQuery = args[0]
		}

		page, err := c.Search(cmd.Context(), params)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		out := printer(cmd)
		if handled, err := out.Data(page); handled {
			return err
		}

		if len(page.Items) == 0 {
			out.Warn("No exceptions")
			return nil
		}
		tbl := output.NewTable("TIMESTAMP", "TYPE", "PROJECT", "COMPONENT", "ENV", "MESSAGE", "ID")
		for _, ex := range page.Items {
			tbl.AddRow(
				ex.Timestamp,
				ex.ExceptionType,
				output.OrNone(ex.ProjectName),
				output.OrNone(ex.ComponentName),
				output.OrNone(ex.Environment),
				output.Truncate(ex.Message, 60),
				ex.ID,
			)
		}
		tbl.Render(out.Out)
		out.Info("%d exceptions, page %d of %d", page.Total, page.Page+1, max(page.TotalPages, 1))
		return nil
	},
}

var filtersCmd = &cobra.Command{
	Use:   "filters",
	Short: "List the values available to the search filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		f, err := c.Filters(cmd.Context())
		if err != nil {
			return err
		}

		out := printer(cmd)
		if handled, err := out.Data(f); handled {
			return err
		}
		sections := []struct {
			name   string
			values []string
		}{
			{"Projects (--project)", f.Projects},
			{"Exception types (--type)", f.ExceptionTypes},
			{"Environments (--env)", f.Environments},
			{"Components (--component)", f.Components},
			{"Services (--service)", f.Services},
			{"Methods (--method)", f.Methods},
		}
		for _, s := range sections {
			out.Heading(s.name)
			if len(s.values) == 0 {
				fmt.Fprintln(out.Out, "  (none)")
				continue
			}
			fmt.Fprintln(out.Out, "  "+strings.Join(s.values, ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd, filtersCmd)

	searchCmd.Flags().String("project", "", "project name")
	searchCmd.Flags().String("type", "", "exception type")
	searchCmd.Flags().String("env", "", "environment")
	searchCmd.Flags().String("component", "", "component name")
	searchCmd.Flags().String("service", "", "service (request path)")
	searchCmd.Flags().String("method", "", "HTTP method")
	searchCmd.Flags().Int("page", 0, "zero-based page")
	searchCmd.Flags().Int("size", 0, "page size (server default when 0)")
	addRangeFlags(searchCmd)
}
