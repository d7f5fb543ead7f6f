package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/exception-monitor/cli/pkg/output"
	"github.com/telhawk-systems/exception-monitor/common/events"
)

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one exception",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := monitorClient(cmd)
		if err != nil {
			return err
		}
		ex, err := c.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if ex == nil {
			return fmt.Errorf("exception %s not found", args[0])
		}

		out := printer(cmd)
		if handled, err := out.Data(ex); handled {
			return err
		}

		w := out.Out
		out.Heading(ex.ExceptionType)
		fmt.Fprintln(w, ex.Message)
		fmt.Fprintln(w)

		fields := [][2]string{
			{"ID", ex.ID},
			{"Timestamp", ex.Timestamp},
			{"Stored", ex.CreatedAt},
			{"Project", ex.ProjectName},
			{"Component", ex.ComponentName},
			{"Environment", ex.Environment},
			{"Cluster", ex.ClusterName},
			{"Pod", ex.PodName},
			{"Pod IP", ex.PodIP},
			{"Service", ex.ServiceName},
			{"Method", ex.Method},
			{"URL", ex.URL},
			{"User agent", ex.UserAgent},
			{"Session", ex.SessionID},
		}
		for _, f := range fields {
			if f[1] != "" {
				fmt.Fprintf(w, "%-12s %s\n", f[0]+":", f[1])
			}
		}

		if ex.AdditionalData != "" {
			fmt.Fprintln(w)
			data, err := events.ParseAdditionalData([]byte(ex.AdditionalData))
			if err != nil {
				out.Warn("Additional data is not a JSON object and is shown as stored.")
				fmt.Fprintln(w, ex.AdditionalData)
			} else {
				printSection(out, "HTTP headers", data.HeaderNames(), func(k string) string {
					return data.HTTPHeaders[k]
				})
				printSection(out, "Request parameters", data.ParameterNames(), func(k string) string {
					return strings.Join(data.RequestParameters[k], ", ")
				})
				if data.HasRemoteInfo() {
					out.Heading("Remote")
					fmt.Fprintf(w, "  %s (%s) port %s\n", data.RemoteAddress, data.RemoteHost, data.RemotePort)
				}
				extra := make([]string, 0, len(data.Extra))
				for k := range data.Extra {
					extra = append(extra, k)
				}
				sort.Strings(extra)
				printSection(out, "Additional data", extra, func(k string) string {
					return fmt.Sprint(data.Extra[k])
				})
			}
		}

		if ex.StackTrace != "" {
			fmt.Fprintln(w)
			out.Heading("Stack trace")
			fmt.Fprintln(w, ex.StackTrace)
		}
		return nil
	},
}

func printSection(out *output.Printer, title string, keys []string, value func(string) string) {
	if len(keys) == 0 {
		return
	}
	out.Heading(title)
	for _, k := range keys {
		fmt.Fprintf(out.Out, "  %s: %s\n", k, value(k))
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
}
