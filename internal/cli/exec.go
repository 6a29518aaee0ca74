package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sqlbridge/sqlbridge"
	"github.com/sqlbridge/sqlbridge/command"
	"github.com/sqlbridge/sqlbridge/result"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	NoRows bool
}

// NewExecCommand runs the profile's command against its backend.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <profile.yaml>",
		Short: "Execute a profile's command",
		Long: `Execute the command block of a YAML profile against its backend.

The result shape follows the profile's hints: scalar, multi, stream, or a
single buffered table. With --no-rows the command executes without reading
a result set (DDL, UPDATE, procedure side effects).

Example:
  sqlbridge exec profiles/orders.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoRows, "no-rows", false, "execute without reading a result set")

	return cmd
}

func runExec(opts *ExecOptions, path string, cmd *cobra.Command) error {
	f := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	p, err := LoadProfile(path)
	if err != nil {
		return err
	}
	cfg, err := p.ExecutorConfig()
	if err != nil {
		return WrapExitError(ExitFailure, "profile", err)
	}
	def, err := p.Definition()
	if err != nil {
		return err
	}

	e, err := sqlbridge.New(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "building executor", err)
	}
	defer e.Close()

	ctx := context.Background()
	f.VerboseLog("executing against %s", p.Database)

	if def.Hints.Streaming {
		return streamExec(ctx, f, e, def, cmd.OutOrStdout())
	}

	var res *result.Result
	switch {
	case opts.NoRows:
		res, err = e.Exec(ctx, def)
	case def.Hints.Scalar:
		res, err = e.QueryScalar(ctx, def)
	case def.Hints.MultiResult:
		res, err = e.QueryMulti(ctx, def)
	default:
		res, err = e.Query(ctx, def)
	}
	if err != nil {
		return reportFailure(f, err)
	}

	return f.Result(res)
}

// streamExec prints rows one at a time without buffering them.
func streamExec(ctx context.Context, f *OutputFormatter, e *sqlbridge.Executor, def *command.Definition, w io.Writer) error {
	s, err := e.QueryStream(ctx, def)
	if err != nil {
		return reportFailure(f, err)
	}
	defer s.Close()

	cols, err := s.Columns()
	if err != nil {
		return reportFailure(f, err)
	}
	fmt.Fprintln(w, strings.Join(cols, "\t"))

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for s.Next() {
		if err := s.Scan(ptrs...); err != nil {
			return reportFailure(f, err)
		}
		cells := make([]string, len(dest))
		for i, v := range dest {
			cells[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := s.Err(); err != nil {
		return reportFailure(f, err)
	}
	if err := s.Close(); err != nil {
		return reportFailure(f, err)
	}

	if outs, err := s.Outputs(); err == nil && len(outs) > 0 {
		fmt.Fprintln(w, "-- outputs")
		for name, v := range outs {
			fmt.Fprintf(w, "%s = %v\n", name, v)
		}
	}
	return nil
}

// reportFailure renders the failure envelope and maps it to exit code 1.
func reportFailure(f *OutputFormatter, err error) error {
	_ = f.Failure("EXEC_FAILED", err)
	return NewExitError(ExitFailure, "command failed")
}
