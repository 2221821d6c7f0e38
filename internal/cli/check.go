package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/slowforest/internal/engine"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/schema"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Values string // YAML file of field values
	Field  string // only report errors about this field
}

// CheckResult is the outcome of checking a form.
type CheckResult struct {
	Form   string        `json:"form"`
	Valid  bool          `json:"valid"`
	Errors []ErrorOutput `json:"errors"`
}

// ErrorOutput is one reported error.
type ErrorOutput struct {
	Message string       `json:"message"`
	Fields  ir.FieldList `json:"fields"`
	Source  string       `json:"source"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <form.cue>",
		Short: "Report the errors of a form",
		Long: `Load a CUE form definition, apply optional field values, and report
the synchronous validation errors of the resulting form.

Exit codes:
  0 - The form has no errors
  1 - The form has errors
  2 - Command error (form or values file invalid)

Examples:
  slowforest check ./forms/basic.cue
  slowforest check ./forms/basic.cue --values answers.yaml
  slowforest check ./forms/basic.cue --values answers.yaml --field name --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Values, "values", "", "YAML file of field values to apply")
	cmd.Flags().StringVar(&opts.Field, "field", "", "only report errors about this field")

	return cmd
}

func runCheck(opts *CheckOptions, path string, cmd *cobra.Command) error {
	logger := opts.Logger(cmd.ErrOrStderr())

	form, err := schema.LoadFile(path)
	if err != nil {
		reportLoadError(opts.Formatter(cmd), err)
		return WrapExitError(ExitCommandError, "failed to load form", err)
	}
	cfg, err := form.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build validators", err)
	}

	values := ir.Values{}
	if opts.Values != "" {
		if values, err = loadValues(opts.Values); err != nil {
			return WrapExitError(ExitCommandError, "failed to load values", err)
		}
	}

	c, err := engine.New(cfg, engine.WithLogger(logger))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create controller", err)
	}
	defer c.Close()

	for _, field := range values.SortedKeys() {
		if err := c.SetValue(field, values[field]); err != nil {
			return WrapExitError(ExitCommandError, "failed to apply values", err)
		}
	}

	result := CheckResult{Form: form.Name, Errors: []ErrorOutput{}}
	for _, e := range c.GetErrors(engine.ErrorQuery{Field: opts.Field}) {
		result.Errors = append(result.Errors, ErrorOutput{
			Message: e.Message,
			Fields:  e.Fields,
			Source:  e.Source.Tag(),
		})
	}
	result.Valid = len(result.Errors) == 0
	logger.Debug("form checked", "form", form.Name, "values", len(values), "errors", len(result.Errors))

	if opts.Format == "json" {
		return outputCheckJSON(cmd, opts, result)
	}
	return outputCheckText(cmd, result)
}

// reportLoadError writes a form definition error. Compile errors carry the
// offending section and position as details.
func reportLoadError(f *OutputFormatter, err error) {
	var details any
	var cerr *schema.CompileError
	if errors.As(err, &cerr) {
		d := map[string]any{"field": cerr.Field}
		if cerr.Pos.IsValid() {
			d["file"] = cerr.Pos.Filename()
			d["line"] = cerr.Pos.Line()
			d["column"] = cerr.Pos.Column()
		}
		details = d
	}
	_ = f.Error("E_FORM_LOAD", err.Error(), details)
}

// loadValues reads a YAML mapping of field values.
func loadValues(path string) (ir.Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return ir.ValuesFromNative(raw)
}

func outputCheckJSON(cmd *cobra.Command, opts *CheckOptions, result CheckResult) error {
	var cliErr *CLIError
	if !result.Valid {
		cliErr = &CLIError{
			Code:    "E_FORM_INVALID",
			Message: fmt.Sprintf("%d error(s)", len(result.Errors)),
		}
	}
	if err := opts.Formatter(cmd).Respond(result, cliErr); err != nil {
		return err
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("form %s has %d error(s)", result.Form, len(result.Errors)))
	}
	return nil
}

func outputCheckText(cmd *cobra.Command, result CheckResult) error {
	w := cmd.OutOrStdout()

	if result.Valid {
		fmt.Fprintf(w, "✓ %s: no errors\n", result.Form)
		return nil
	}

	fmt.Fprintf(w, "✗ %s: %d error(s)\n", result.Form, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  [%s] %s (%s)\n", e.Fields, e.Message, e.Source)
	}
	return NewExitError(ExitFailure, fmt.Sprintf("form %s has %d error(s)", result.Form, len(result.Errors)))
}
