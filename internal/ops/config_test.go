package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/credential"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadResolvesFile(t *testing.T) {
	path := writeConfig(t, `{
		"clans": [{"name": "Alpha", "tag": "abc123"}],
		"credentials": {"203.0.113.7": "token-a", "*": "token-any"},
		"api": {"timeoutSeconds": 20, "clanCacheTtlSeconds": 90},
		"tracking": {"checkIntervalSeconds": 45, "leaveDebounceCount": 3}
	}`)

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Clans, 1)
	assert.Equal(t, "Alpha", loaded.Clans[0].Name)
	assert.Equal(t, "#ABC123", loaded.Clans[0].Tag)

	require.Len(t, loaded.Credentials, 2)
	assert.Equal(t, "203.0.113.7", loaded.Credentials[0].Identity)
	assert.Equal(t, credential.Wildcard, loaded.Credentials[1].Identity)

	assert.Equal(t, 20*time.Second, loaded.API.Timeout)
	assert.Equal(t, 90*time.Second, loaded.API.ClanTTL)
	assert.Equal(t, 45*time.Second, loaded.Runner.Intervals.Member)
	assert.Equal(t, 3, loaded.Runner.Membership.DebounceThreshold)
	assert.True(t, loaded.Runner.Membership.SkipEmpty)
	assert.Equal(t, defaultIPDetectURL, loaded.IPDetectURL)
	assert.Equal(t, 1, loaded.SnapshotDay)
}

func TestLoadEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `{
		"clans": [{"tag": "#AAA"}],
		"credentials": {"*": "file-token"},
		"tracking": {"leaveDebounceCount": 5}
	}`)

	t.Setenv("COC_API_KEYS", `{"198.51.100.2": "env-a", "*": "env-any"}`)
	t.Setenv("LEAVE_DEBOUNCE_COUNT", "2")
	t.Setenv("SKIP_EMPTY_MEMBER_LIST", "false")
	t.Setenv("POSTGRES_DSN", "postgres://tracker")

	loaded, err := Load(path)
	require.NoError(t, err)

	require.Len(t, loaded.Credentials, 2)
	assert.Equal(t, "env-a", loaded.Credentials[0].Token)
	assert.Equal(t, 2, loaded.Runner.Membership.DebounceThreshold)
	assert.False(t, loaded.Runner.Membership.SkipEmpty)
	assert.Equal(t, "postgres://tracker", loaded.Storage.PostgresDSN)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("COC_API_KEY", "single-token")

	_, err := Load("")
	require.Error(t, err) // no clans

	path := writeConfig(t, `{"clans": [{"tag": "#AAA"}]}`)
	loaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, loaded.Credentials, 1)
	assert.Equal(t, credential.Wildcard, loaded.Credentials[0].Identity)
	assert.Equal(t, "single-token", loaded.Credentials[0].Token)
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no clans", `{"credentials": {"*": "t"}}`},
		{"empty tag", `{"clans": [{"tag": "  "}], "credentials": {"*": "t"}}`},
		{"duplicate tag", `{"clans": [{"tag": "#AAA"}, {"tag": "aaa"}], "credentials": {"*": "t"}}`},
		{"no credentials", `{"clans": [{"tag": "#AAA"}]}`},
		{"empty token", `{"clans": [{"tag": "#AAA"}], "credentials": {"*": ""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "#ABC123", NormalizeTag("abc123"))
	assert.Equal(t, "#ABC123", NormalizeTag("#abc123"))
	assert.Equal(t, "#ABC", NormalizeTag("  #abc "))
}
