package main

import (
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/noise-cli/internal/model"
)

var (
	healthStart   string
	healthEnd     string
	healthDevices string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print per-device health for a date window",
	Long:  "Classifies every device as ONLINE, DEGRADED or OFFLINE over [start, end] and prints the records as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "read")
		if err != nil {
			return err
		}
		defer env.Close()

		start, err := resolveDay(healthStart, time.Now(), env.Location)
		if err != nil {
			return eris.Wrap(err, "invalid --start")
		}
		end := start
		if healthEnd != "" {
			if end, err = model.ParseDay(healthEnd); err != nil {
				return eris.Wrap(err, "invalid --end")
			}
		}

		records, err := env.newReadAPI().Health(ctx, start, end, splitList(healthDevices))
		if err != nil {
			return eris.Wrap(err, "health")
		}
		return printJSON(cmd.OutOrStdout(), records)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func init() {
	healthCmd.Flags().StringVar(&healthStart, "start", "", "first day, YYYY-MM-DD (default yesterday)")
	healthCmd.Flags().StringVar(&healthEnd, "end", "", "last day, YYYY-MM-DD (default same as --start)")
	healthCmd.Flags().StringVar(&healthDevices, "devices", "", "comma separated device ids (default all)")
	rootCmd.AddCommand(healthCmd)
}
