package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var basicForm = filepath.Join("..", "harness", "testdata", "forms", "basic.cue")

func executeCheck(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCheckCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeValues(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "values.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCheckCommand_InitialValues(t *testing.T) {
	out, err := executeCheck(t, "text", basicForm)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ basic: 1 error(s)")
	assert.Contains(t, out, "[name] Name is required. (synchronous)")
}

func TestCheckCommand_Valid(t *testing.T) {
	values := writeValues(t, "name: Ann\nhuman: true\nplanet: earth\n")

	out, err := executeCheck(t, "text", basicForm, "--values", values)
	require.NoError(t, err)
	assert.Equal(t, "✓ basic: no errors\n", out)
}

func TestCheckCommand_WholeFormError(t *testing.T) {
	values := writeValues(t, "name: Ann\npet: cat\nplanet: mars\n")

	out, err := executeCheck(t, "json", basicForm, "--values", values)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   CheckResult `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_FORM_INVALID", resp.Error.Code)

	assert.Equal(t, "basic", resp.Data.Form)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Errors, 1)
	assert.Equal(t, "If you like cats, you must also like Pluto.", resp.Data.Errors[0].Message)
	assert.True(t, resp.Data.Errors[0].Fields.IsAll())
	assert.Equal(t, "synchronous", resp.Data.Errors[0].Source)
}

func TestCheckCommand_FieldFilter(t *testing.T) {
	values := writeValues(t, "name: \"\"\npet: cat\nplanet: mars\n")

	out, err := executeCheck(t, "text", basicForm, "--values", values)
	require.Error(t, err)
	assert.Contains(t, out, "2 error(s)")

	// Whole-form errors match every field.
	out, err = executeCheck(t, "text", basicForm, "--values", values, "--field", "planet")
	require.Error(t, err)
	assert.Contains(t, out, "1 error(s)")
	assert.Contains(t, out, "Pluto")
	assert.NotContains(t, out, "Name is required.")
}

func TestCheckCommand_JSONValid(t *testing.T) {
	values := writeValues(t, "name: Ann\n")

	out, err := executeCheck(t, "json", basicForm, "--values", values)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestCheckCommand_Errors(t *testing.T) {
	badValues := writeValues(t, "name: [unclosed\n")
	floatValues := writeValues(t, "age: 1.5\n")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing form", []string{"/nonexistent/form.cue"}, "failed to load form"},
		{"bad form", []string{filepath.Join("..", "schema", "testdata", "forms", "missing_name.cue")}, "name is required"},
		{"missing values", []string{basicForm, "--values", "/nonexistent/values.yaml"}, "failed to load values"},
		{"bad values", []string{basicForm, "--values", badValues}, "failed to parse YAML"},
		{"float values", []string{basicForm, "--values", floatValues}, "failed to load values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCheck(t, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCheckCommand_LoadErrorDetails(t *testing.T) {
	out, err := executeCheck(t, "json", filepath.Join("..", "schema", "testdata", "forms", "bad_rule.cue"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_FORM_LOAD", resp.Error.Code)

	details, ok := resp.Error.Details.(map[string]any)
	require.True(t, ok, "details: %#v", resp.Error.Details)
	assert.Equal(t, "rules", details["field"])
	assert.Contains(t, details["file"], "bad_rule.cue")
}

func TestCheckCommand_MissingArgs(t *testing.T) {
	_, err := executeCheck(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
