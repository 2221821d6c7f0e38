package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/slowforest/internal/cancel"
	"github.com/roach88/slowforest/internal/ir"
)

func noopAsync(context.Context, ir.RunningRequest, ir.Values, *cancel.Token) (*ir.ValidationResult, error) {
	return &ir.ValidationResult{}, nil
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg: Config{Validators: []Validator{
				{ID: "required", Sync: requiredName},
				{ID: "unique", Fields: ir.Fields("name"), Async: noopAsync},
			}},
		},
		{
			name:    "empty id",
			cfg:     Config{Validators: []Validator{{Sync: requiredName}}},
			wantErr: "validator 0: empty id",
		},
		{
			name: "duplicate id",
			cfg: Config{Validators: []Validator{
				{ID: "a", Sync: requiredName},
				{ID: "a", Async: noopAsync},
			}},
			wantErr: `validator "a": duplicate id`,
		},
		{
			name:    "both funcs",
			cfg:     Config{Validators: []Validator{{ID: "a", Sync: requiredName, Async: noopAsync}}},
			wantErr: "both sync and async set",
		},
		{
			name:    "no func",
			cfg:     Config{Validators: []Validator{{ID: "a"}}},
			wantErr: "neither sync nor async set",
		},
		{
			name:    "nil initial value",
			cfg:     Config{InitialValues: ir.Values{"name": nil}},
			wantErr: `initial value "name"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.normalize()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsInvalidConfig(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_NormalizeDefaultsFieldsToWholeForm(t *testing.T) {
	cfg := Config{Validators: []Validator{
		{ID: "unique", Async: noopAsync},
		{ID: "required", Fields: ir.Fields("name"), Sync: requiredName},
	}}
	original := cfg.Validators

	async, err := cfg.normalize()
	require.NoError(t, err)

	assert.True(t, cfg.Validators[0].Fields.IsAll())
	assert.False(t, original[0].Fields.IsAll(), "caller's slice is not modified")
	assert.Equal(t, []string{"name"}, cfg.Validators[1].Fields.Names())

	require.Contains(t, async, "unique")
	assert.True(t, async["unique"].IsAsync())
	assert.NotContains(t, async, "required")
}
