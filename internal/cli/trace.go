package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/slowforest/internal/harness"
	"github.com/roach88/slowforest/internal/ir"
	"github.com/roach88/slowforest/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	FormID   string
	Kind     string // optional - filter to one event kind
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Scenario string           `json:"scenario,omitempty"`
	FormID   string           `json:"form_id"`
	Pass     *bool            `json:"pass,omitempty"`
	Errors   []string         `json:"errors,omitempty"`
	Events   []map[string]any `json:"events"`
	Stats    map[string]int   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [scenario.yaml]",
		Short: "Show the event journal of a form",
		Long: `Show the committed events of a form in journal order.

With a scenario argument, the scenario is run and its journal printed.
--db then names a new SQLite file that keeps the journal afterwards.

Without a scenario, --db names an existing journal to read. --form picks
the form when the journal holds more than one.

Examples:
  slowforest trace ./scenarios/submit_race.yaml
  slowforest trace ./scenarios/submit_race.yaml --db ./race.db
  slowforest trace --db ./race.db --kind validation_started
  slowforest trace --db ./race.db --form id-1 --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runScenarioTrace(opts, args[0], cmd)
			}
			return runJournalTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal")
	cmd.Flags().StringVar(&opts.FormID, "form", "", "form ID to read from the journal")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")

	return cmd
}

func runScenarioTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	if opts.Database != "" {
		if _, err := os.Stat(opts.Database); err == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf("database already exists: %s", opts.Database))
		}
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := harness.RunWithOptions(ctx, scenario, harness.Options{
		Logger:    opts.Logger(cmd.ErrOrStderr()),
		StorePath: opts.Database,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	pass := result.Pass
	tr := buildTrace(result.FormID, result.Trace, opts.Kind)
	tr.Scenario = scenario.Name
	tr.Pass = &pass
	tr.Errors = result.Errors

	if err := outputTrace(cmd, opts, tr); err != nil {
		return err
	}
	if !pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func runJournalTrace(opts *TraceOptions, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required without a scenario")
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if version, err := st.SchemaVersion(); err == nil {
		opts.Logger(cmd.ErrOrStderr()).Debug("journal opened", "path", opts.Database, "schema_version", version)
	}

	ctx := context.Background()
	formID := opts.FormID
	if formID == "" {
		ids, err := st.ListForms(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list forms", err)
		}
		switch len(ids) {
		case 0:
			return NewExitError(ExitCommandError, "journal holds no forms")
		case 1:
			formID = ids[0]
		default:
			return NewExitError(ExitCommandError,
				fmt.Sprintf("journal holds %d forms, pick one with --form: %s", len(ids), strings.Join(ids, ", ")))
		}
	}

	events, err := st.ReadEvents(ctx, formID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}
	if len(events) == 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("no events found for form: %s", formID))
	}

	counts, err := st.CountByKind(ctx, formID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	tr := buildTrace(formID, events, opts.Kind)
	for kind, n := range counts {
		tr.Stats[string(kind)] = n
	}
	return outputTrace(cmd, opts, tr)
}

// buildTrace converts journal events to trace entries. Stats count every
// event, filtered or not.
func buildTrace(formID string, events []ir.Event, kind string) TraceResult {
	tr := TraceResult{
		FormID: formID,
		Events: []map[string]any{},
		Stats:  map[string]int{},
	}
	for _, ev := range events {
		tr.Stats[string(ev.Kind)]++
		if kind != "" && string(ev.Kind) != kind {
			continue
		}
		tr.Events = append(tr.Events, harness.TraceEntry(ev))
	}
	return tr
}

func outputTrace(cmd *cobra.Command, opts *TraceOptions, tr TraceResult) error {
	if opts.Format == "json" {
		return outputTraceJSON(cmd, opts, tr)
	}
	outputTraceText(cmd.OutOrStdout(), tr)
	return nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, opts *TraceOptions, result TraceResult) error {
	var cliErr *CLIError
	if result.Pass != nil && !*result.Pass {
		cliErr = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("scenario %s failed", result.Scenario),
			Details: result.Errors,
		}
	}
	return opts.Formatter(cmd).Respond(result, cliErr)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) {
	if result.Scenario != "" {
		fmt.Fprintf(w, "Trace for Scenario: %s\n", result.Scenario)
	}
	fmt.Fprintf(w, "Form: %s\n", result.FormID)
	if result.Pass != nil {
		status := "passed"
		if !*result.Pass {
			status = "failed"
		}
		fmt.Fprintf(w, "Status: %s\n", status)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, entry := range result.Events {
		fmt.Fprintf(w, "  %4d %-22s%s\n", entry["time"], entry["kind"], formatDetails(entry))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	kinds := make([]string, 0, len(result.Stats))
	for k := range result.Stats {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-22s %d\n", k, result.Stats[k])
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Errors ===")
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
}

// formatDetails renders every entry key except kind and time as sorted
// key=value pairs.
func formatDetails(entry map[string]any) string {
	keys := make([]string, 0, len(entry))
	for k := range entry {
		if k == "kind" || k == "time" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := entry[k]
		if names, ok := v.([]string); ok {
			v = strings.Join(names, ",")
		}
		parts[i] = fmt.Sprintf("%s=%v", k, v)
	}
	return " " + strings.Join(parts, " ")
}
