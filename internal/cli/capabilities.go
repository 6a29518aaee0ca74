package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sqlbridge/sqlbridge"
)

// capabilityRow is the JSON shape of one backend's capability entry.
type capabilityRow struct {
	Database        string `json:"database"`
	Streaming       bool   `json:"streaming"`
	NativeMulti     bool   `json:"native_multi_result"`
	CursorTxScope   bool   `json:"cursor_transaction_scope"`
	ParameterPrefix string `json:"parameter_prefix"`
}

// NewCapabilitiesCommand prints the static capability table for every
// supported backend.
func NewCapabilitiesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show the per-backend capability table",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}

			rows, err := capabilityRows()
			if err != nil {
				return WrapExitError(ExitCommandError, "building capability table", err)
			}

			if opts.Format == "json" {
				return f.Success(rows)
			}
			fmt.Fprint(cmd.OutOrStdout(), renderCapabilityTable(rows))
			return nil
		},
	}
}

func capabilityRows() ([]capabilityRow, error) {
	rows := make([]capabilityRow, 0, 3)
	for _, dt := range []sqlbridge.DatabaseType{
		sqlbridge.SQLServer, sqlbridge.PostgreSQL, sqlbridge.Oracle,
	} {
		e, err := sqlbridge.New(sqlbridge.Config{DatabaseType: dt})
		if err != nil {
			return nil, err
		}
		cap := e.Capability()
		_ = e.Close()

		prefix := cap.ParameterPrefix
		if prefix == "" {
			prefix = "(positional)"
		}
		rows = append(rows, capabilityRow{
			Database:        string(dt),
			Streaming:       cap.SupportsStreaming,
			NativeMulti:     cap.SupportsNativeMultiResult,
			CursorTxScope:   cap.RequiresCursorTransactionScope,
			ParameterPrefix: prefix,
		})
	}
	return rows, nil
}

func renderCapabilityTable(rows []capabilityRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-10s %-13s %-16s %s\n",
		"DATABASE", "STREAMING", "NATIVE-MULTI", "CURSOR-TX-SCOPE", "PARAM-PREFIX")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-10t %-13t %-16t %s\n",
			r.Database, r.Streaming, r.NativeMulti, r.CursorTxScope, r.ParameterPrefix)
	}
	return b.String()
}
