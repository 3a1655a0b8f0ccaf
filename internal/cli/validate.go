package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/objectledge/coral/internal/errors"
	"github.com/objectledge/coral/internal/schemaspec"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	AgainstDB bool // resolve parents and types against the database schema too
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                         `json:"valid"`
	Classes int                          `json:"classes"`
	Errors  []schemaspec.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate CUE schema files without applying them",
		Long: `Validate CUE schema files without touching the database.

The files form one CUE package and each must start with the same package
clause. Checks names, flags, storage handlers, attribute types, defaults
and the inheritance graph. All errors are reported. With --against-db, classes and
attribute types already in the database count as known.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := rootOpts.effectiveConfig().Schema.Dir
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.AgainstDB, "against-db", false, "resolve references against the database schema")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, loadErrors := schemaspec.LoadDir(dir)

	// Handle load errors (directory not found, no files, etc.)
	if spec == nil && len(loadErrors) > 0 {
		return formatter.Error(loadFailure(loadErrors[0]), nil)
	}
	formatter.VerboseLog("Loaded %d class(es) from %s", len(spec.Classes), dir)

	var validationErrors []schemaspec.ValidationError
	for _, err := range loadErrors {
		validationErrors = append(validationErrors, compileValidationError(err))
	}

	var known schemaspec.Known
	if opts.AgainstDB {
		e, err := openEnv(cmd.Context(), opts.RootOptions)
		if err != nil {
			return dbError(formatter, err)
		}
		defer e.Close()
		known = schemaspec.GraphKnown{G: e.graph}
	}
	validationErrors = append(validationErrors, schemaspec.Validate(spec, known)...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Classes: len(spec.Classes)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d class(es))\n", len(spec.Classes))
	return nil
}

// compileValidationError converts a compile error to a validation error.
func compileValidationError(err error) schemaspec.ValidationError {
	var ce *schemaspec.CompileError
	if errors.As(err, &ce) {
		line := 0
		if ce.Pos.IsValid() {
			line = ce.Pos.Line()
		}
		return schemaspec.ValidationError{
			Field:   ce.Field,
			Message: ce.Message,
			Code:    schemaspec.ErrCodeGeneric,
			Line:    line,
		}
	}
	fl := classify(loadFailure(err))
	return schemaspec.ValidationError{Field: "load", Message: fl.cli.Message, Code: fl.cli.Code}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schemaspec.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
