package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sqlbridge/sqlbridge/command"
)

// NewValidateProfileCommand checks a profile file against the schema and
// the structural command rules without touching any backend.
func NewValidateProfileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-profile <profile.yaml>",
		Short: "Validate an execution profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := &OutputFormatter{
				Format:    opts.Format,
				Writer:    cmd.OutOrStdout(),
				ErrWriter: cmd.ErrOrStderr(),
				Verbose:   opts.Verbose,
			}
			cmd.SilenceUsage = true

			p, err := LoadProfile(args[0])
			if err != nil {
				var exitErr *ExitError
				if errors.As(err, &exitErr) && exitErr.Code == ExitCommandError {
					return err
				}
				_ = f.Failure("PROFILE_INVALID", err)
				return NewExitError(ExitFailure, "profile validation failed")
			}

			if _, err := p.ExecutorConfig(); err != nil {
				_ = f.Failure("PROFILE_INVALID", err)
				return NewExitError(ExitFailure, "profile validation failed")
			}

			// The structural gate runs here too, so a profile that would be
			// rejected at execution time fails fast offline.
			if p.Command != nil {
				def, err := p.Definition()
				if err != nil {
					_ = f.Failure("PROFILE_INVALID", err)
					return NewExitError(ExitFailure, "profile validation failed")
				}
				if serr := command.Validate(def); serr != nil {
					_ = f.Failure("PROFILE_INVALID", serr)
					return NewExitError(ExitFailure, "profile validation failed")
				}
			}

			return f.Success(fmt.Sprintf("profile %s is valid", args[0]))
		},
	}
}
