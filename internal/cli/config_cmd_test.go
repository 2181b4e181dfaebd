package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/arbiter/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	return file
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"false", false},
		{"True", "True"},
		{"600", 600},
		{"-3", -3},
		{"0.5", 0.5},
		{"inf", "inf"},
		{"NaN", "NaN"},
		{"gpt-4o", "gpt-4o"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestConfigGet(t *testing.T) {
	file := writeConfig(t, "dialog:\n  replyDelayMs: 250\n  acknowledgement: ok\n")

	var out bytes.Buffer
	require.NoError(t, configGet(&out, file, "dialog.replyDelayMs"))
	assert.Equal(t, "250\n", out.String())

	out.Reset()
	require.NoError(t, configGet(&out, file, "dialog"))
	assert.Contains(t, out.String(), "acknowledgement: ok")

	assert.ErrorIs(t, configGet(&out, file, "dialog.models"), errKeyNotFound)
	assert.Error(t, configGet(&out, file, "dialog..models"))
}

func TestConfigSet(t *testing.T) {
	file := writeConfig(t, "dialog:\n  acknowledgement: ok\n")

	require.NoError(t, configSet(file, "dialog.replyDelayMs", 900))
	require.NoError(t, configSet(file, "registry.store", "sqlite"))

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Dialog.ReplyDelayMs)
	assert.Equal(t, "ok", cfg.Dialog.Acknowledgement)
	assert.Equal(t, "sqlite", cfg.Registry.Store)
}

func TestConfigSet_RejectsInvalid(t *testing.T) {
	body := "registry:\n  store: memory\n"
	file := writeConfig(t, body)

	err := configSet(file, "registry.store", "redis")
	var ve *config.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "registry.store", ve.Issues[0].Path)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, body, string(data), "rejected edit leaves the file alone")
}

func TestConfigSet_CreatesFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, configSet(file, "gateway.port", 19000))

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, 19000, cfg.Gateway.Port)
}

func TestConfigUnset(t *testing.T) {
	file := writeConfig(t, "dialog:\n  replyDelayMs: 250\nregistry:\n  store: sqlite\n")

	require.NoError(t, configUnset(file, "dialog.replyDelayMs"))
	assert.ErrorIs(t, configUnset(file, "dialog.replyDelayMs"), errKeyNotFound)

	raw, err := config.LoadRaw(file)
	require.NoError(t, err)
	_, ok := raw["dialog"]
	assert.False(t, ok, "emptied section is pruned")
	assert.Equal(t, map[string]any{"store": "sqlite"}, raw["registry"])
}
