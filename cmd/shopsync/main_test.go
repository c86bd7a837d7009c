package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	synerrors "github.com/ajitpratap0/shopsync/pkg/errors"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2024-01-15", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{in: " 2024-01-15 ", want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{in: "2024-01-15T10:30:00+02:00", want: time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{in: "", wantErr: true},
		{in: "15/01/2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, synerrors.IsType(err, synerrors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestRootCmd_HasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"version", "run", "sync", "backfill", "state", "config"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestBackfillCmd_RequiresStart(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"backfill"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestStateCmd_PrintsDefaultDocument(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	cfgPath := filepath.Join(dir, "shopsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("checkpoint:\n  type: file\n  path: "+statePath+"\nlogging:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"state", "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
	root.SetOut(&out)
	require.NoError(t, root.Execute())

	assert.Contains(t, out.String(), `"shopify"`)
	assert.Contains(t, out.String(), `"lastSync": null`)
}

func TestConfigCmd_MasksSecrets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "shopsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("shopify:\n  shop_name: demo\n  access_token: shpat_secret\nlogging:\n  level: error\n"), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"config", "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
	root.SetOut(&out)
	require.NoError(t, root.Execute())

	assert.NotContains(t, out.String(), "shpat_secret")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	shop, ok := decoded["shopify"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "demo", shop["shop_name"])
}
