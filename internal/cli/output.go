package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sqlbridge/sqlbridge/dberr"
	"github.com/sqlbridge/sqlbridge/result"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Command ran but reported a failure (invalid profile, backend error)
	ExitCommandError = 2 // Command error (bad flags, missing files)
)

// ExitError carries an exit code alongside the failure.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter renders command outcomes as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostic output; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // failure envelope
}

// CLIError is the rendered form of a failed outcome. For backend
// failures it mirrors the structured-error taxonomy; CLI-side failures
// carry only a code and message.
type CLIError struct {
	Type      string `json:"type,omitempty"`    // taxonomy category (DEADLOCK, TIMEOUT, ...)
	Code      string `json:"code"`              // stable error code
	Message   string `json:"message"`           // human-readable message
	Transient bool   `json:"transient"`         // whether a retry may succeed
	Details   string `json:"details,omitempty"` // backend diagnostic text
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Failure renders one failed outcome. A structured error keeps its full
// envelope: taxonomy type, stable code, localized message, transience,
// and backend details. Anything else falls back to the supplied code
// with the error's text.
func (f *OutputFormatter) Failure(fallbackCode string, err error) error {
	ce := &CLIError{Code: fallbackCode, Message: err.Error()}
	if se, ok := dberr.As(err); ok {
		ce.Type = string(se.Type)
		ce.Code = se.Code
		ce.Message = se.Localize(dberr.DefaultPrinter())
		ce.Transient = se.Transient
		ce.Details = se.ProviderDetails
	}

	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  ce,
		})
	}

	if ce.Type != "" {
		fmt.Fprintf(f.Writer, "Error [%s/%s]: %s\n", ce.Type, ce.Code, ce.Message)
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", ce.Code, ce.Message)
	}
	if ce.Transient {
		fmt.Fprintln(f.Writer, "transient: a retry may succeed")
	}
	if f.Verbose && ce.Details != "" {
		fmt.Fprintf(f.Writer, "Details: %s\n", ce.Details)
	}
	return nil
}

// Result renders one execution result: scalar, buffered tables, output
// parameters, and diagnostics.
func (f *OutputFormatter) Result(res *result.Result) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   res,
		})
	}

	w := f.Writer
	if res.InvocationID != "" {
		fmt.Fprintf(w, "invocation: %s\n", res.InvocationID)
	}
	if res.Retries > 0 {
		fmt.Fprintf(w, "retries: %d\n", res.Retries)
	}
	if res.Scalar != nil {
		fmt.Fprintf(w, "scalar: %v\n", res.Scalar)
	}
	if res.RowsAffected > 0 {
		fmt.Fprintf(w, "rows affected: %d\n", res.RowsAffected)
	}
	for i, table := range res.Tables {
		fmt.Fprintf(w, "-- result set %d (%d rows)\n", i+1, table.RowCount())
		fmt.Fprintln(w, strings.Join(table.ColumnNames(), "\t"))
		for _, row := range table.Rows {
			cells := make([]string, len(row))
			for j, v := range row {
				cells[j] = fmt.Sprintf("%v", v)
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	}
	if len(res.Outputs) > 0 {
		fmt.Fprintln(w, "-- outputs")
		for name, v := range res.Outputs {
			fmt.Fprintf(w, "%s = %v\n", name, v)
		}
	}
	fmt.Fprintf(w, "elapsed: %s\n", res.Duration)
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled. When format
// is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
