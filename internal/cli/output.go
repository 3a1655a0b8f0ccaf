package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/querysql"
	"github.com/objectledge/coral/internal/schemaspec"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // invalid schema, failed scenarios, rejected apply
	ExitCommandError = 2 // bad arguments or paths, malformed queries, database errors
)

// Error codes reported in CLIError.Code. Schema load and validation
// errors keep the E0xx and E2xx codes of package schemaspec.
const (
	ErrCodeGeneric      = "E001" // unclassified failure
	ErrCodeQuery        = "E101" // malformed query
	ErrCodeDatabase     = "E102" // database open or access failure
	ErrCodeApply        = "E103" // schema apply failure
	ErrCodeUnknownClass = "E104" // lookup of an unknown class
	ErrCodeWrite        = "E105" // output file could not be written
	ErrCodeTestFailed   = "E_TEST_FAILED"
)

// ExitError carries the process exit code a command failed with.
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

// NewExitError creates an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, ExitFailure if none.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// codedError pins the CLI code and exit status of an error that classify
// cannot derive from its type, such as a failed file write.
type codedError struct {
	code    string
	exit    int
	summary string
	err     error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, exit int, summary string, err error) error {
	return &codedError{code: code, exit: exit, summary: summary, err: err}
}

// failure is the classified form of a command error.
type failure struct {
	cli     CLIError
	exit    int
	summary string
}

// classify maps a command error to its CLIError code, details and exit
// status.
func classify(err error) failure {
	var (
		coded *codedError
		mq    *querysql.MalformedQueryError
		le    *schemaspec.LoadError
		ve    schemaspec.ValidationError
	)
	switch {
	case errors.As(err, &coded):
		return failure{CLIError{Code: coded.code, Message: err.Error()}, coded.exit, coded.summary}
	case errors.As(err, &mq):
		details := QueryErrorDetails{Kind: string(mq.Code), Operand: mq.Operand}
		return failure{CLIError{Code: ErrCodeQuery, Message: err.Error(), Details: details}, ExitCommandError, "malformed query"}
	case errors.As(err, &le):
		return failure{CLIError{Code: le.Code, Message: le.Message}, ExitCommandError, "failed to load schema"}
	case errors.As(err, &ve):
		return failure{CLIError{Code: ve.Code, Message: err.Error()}, ExitFailure, "invalid schema"}
	case errors.IsEntityDoesNotExist(err):
		return failure{CLIError{Code: ErrCodeUnknownClass, Message: err.Error()}, ExitCommandError, "not found"}
	case errors.IsBackendError(err):
		return failure{CLIError{Code: ErrCodeDatabase, Message: err.Error()}, ExitCommandError, "database error"}
	default:
		return failure{CLIError{Code: ErrCodeGeneric, Message: err.Error()}, ExitFailure, "command failed"}
	}
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; keeps JSON on Writer clean
	Verbose   bool
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse. Code is one of the ErrCode
// constants or a schemaspec code.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Success writes a successful result.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error reports err and returns the ExitError the command should fail
// with. The code, exit status and default details follow err's type;
// non-nil details replace the defaults.
func (f *OutputFormatter) Error(err error, details interface{}) error {
	fl := classify(err)
	if details != nil {
		fl.cli.Details = details
	}
	if werr := f.writeError(&fl.cli); werr != nil {
		return werr
	}
	return WrapExitError(fl.exit, fl.summary, err)
}

func (f *OutputFormatter) writeError(ce *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: ce})
	}
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", ce.Code, ce.Message)
	if f.Verbose && ce.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", ce.Details)
	}
	return nil
}

// VerboseLog writes a diagnostic line when verbose output is on.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
