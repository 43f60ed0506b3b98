package app

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type rootOptions struct {
	v *viper.Viper
}

func (o *rootOptions) client() *Client {
	return NewClient(o.v.GetString("server"), o.v.GetString("token"), o.v.GetDuration("timeout"))
}

func (o *rootOptions) output() string {
	return o.v.GetString("output")
}

// NewRootCommand builds hydronom-ctl. Every persistent flag can also be
// set through a HYDRONOM_ prefixed environment variable.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{v: viper.New()}
	o.v.SetEnvPrefix("HYDRONOM")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "hydronom-ctl",
		Short:         "Operate a Hydronom relay from the command line",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch o.output() {
			case outputTable, outputJSON:
				return nil
			default:
				return fmt.Errorf("--output must be %q or %q", outputTable, outputJSON)
			}
		},
	}

	fs := cmd.PersistentFlags()
	fs.String("server", "http://localhost:8080", "Base URL of the relay HTTP API.")
	fs.String("token", "", "Bearer token for write operations.")
	fs.Duration("timeout", 10*time.Second, "Request timeout.")
	fs.StringP("output", "o", outputTable, "Output format: table or json.")
	_ = o.v.BindPFlags(fs)

	cmd.AddCommand(
		newTokenCommand(o),
		newVehiclesCommand(o),
		newStateCommand(o),
		newCommandCommand(o),
		newMissionCommand(o),
		newAuditCommand(o),
	)
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...any) *uitable.Table {
	t := uitable.New()
	t.MaxColWidth = 60
	t.AddRow(headers...)
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
