package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"main/internal/coc"
	"main/internal/credential"
	"main/internal/tracker"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Clans       []ClanConfig      `json:"clans"`
	Credentials map[string]string `json:"credentials"`
	API         APIConfig         `json:"api"`
	Tracking    TrackingConfig    `json:"tracking"`
	Storage     StorageConfig     `json:"storage"`
	Profiling   ProfilingConfig   `json:"profiling"`
}

// ClanConfig describes one clan entry.
type ClanConfig struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// APIConfig describes the upstream gateway settings. Durations are seconds.
type APIConfig struct {
	BaseURL        string `json:"baseUrl"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
	Concurrency    int    `json:"concurrency"`
	ClanTTL        int    `json:"clanCacheTtlSeconds"`
	PlayerTTL      int    `json:"playerCacheTtlSeconds"`
	WarTTL         int    `json:"warCacheTtlSeconds"`
	IPDetectURL    string `json:"ipDetectUrl"`
	IPCacheTTL     int    `json:"ipCacheTtlSeconds"`
}

// TrackingConfig describes the poll loops and trackers. Durations are seconds.
type TrackingConfig struct {
	CheckInterval        int   `json:"checkIntervalSeconds"`
	WarPollInterval      int   `json:"warPollIntervalSeconds"`
	UpgradeCheckInterval int   `json:"upgradeCheckIntervalSeconds"`
	LeaveDebounceCount   int   `json:"leaveDebounceCount"`
	SkipEmptyMemberList  *bool `json:"skipEmptyMemberList"`
	HeroAlertMin         int   `json:"heroAlertMin"`
	MonthlySnapshotDay   int   `json:"monthlySnapshotDay"`
	EventQueueSize       int   `json:"eventQueueSize"`
}

// StorageConfig selects the persistence backend. A non-empty DSN picks
// Postgres, otherwise per-key JSON files under DataDir.
type StorageConfig struct {
	DataDir     string `json:"dataDir"`
	PostgresDSN string `json:"postgresDsn"`
}

// ProfilingConfig captures optional continuous profiling.
type ProfilingConfig struct {
	Enable        bool   `json:"enable"`
	ServerAddress string `json:"serverAddress"`
}

// envOverrides lets deployment environments win over the config file.
type envOverrides struct {
	APIKey               string `env:"COC_API_KEY"`
	APIKeys              string `env:"COC_API_KEYS"`
	BaseURL              string `env:"COC_API_BASE_URL"`
	Timeout              int    `env:"COC_TIMEOUT"`
	Concurrency          int    `env:"COC_CONCURRENCY"`
	IPDetectURL          string `env:"COC_IP_DETECT_URL"`
	IPCacheTTL           int    `env:"COC_IP_CACHE_TTL"`
	ClanTTL              int    `env:"CLAN_CACHE_TTL"`
	PlayerTTL            int    `env:"PLAYER_CACHE_TTL"`
	WarTTL               int    `env:"WAR_CACHE_TTL"`
	CheckInterval        int    `env:"CHECK_INTERVAL"`
	WarPollInterval      int    `env:"WAR_POLL_INTERVAL"`
	UpgradeCheckInterval int    `env:"UPGRADE_ALERT_CHECK"`
	LeaveDebounceCount   int    `env:"LEAVE_DEBOUNCE_COUNT"`
	SkipEmptyMemberList  *bool  `env:"SKIP_EMPTY_MEMBER_LIST"`
	MonthlySnapshotDay   int    `env:"MONTHLY_SNAPSHOT_DAY"`
	DataDir              string `env:"DATA_DIR"`
	PostgresDSN          string `env:"POSTGRES_DSN"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Clans       []tracker.Clan
	Credentials []credential.Credential
	API         coc.Config
	IPDetectURL string
	IPCacheTTL  time.Duration
	Runner      tracker.RunnerConfig
	SnapshotDay int
	QueueSize   int
	Storage     StorageConfig
	Profiling   ProfilingConfig
}

const (
	defaultIPDetectURL = "https://api.ipify.org"
	defaultIPCacheTTL  = 300
	defaultQueueSize   = 256
)

// Load reads the JSON config file, applies environment overrides and
// resolves everything into runtime settings. An empty path skips the file
// and configures from the environment alone.
func Load(path string) (Loaded, error) {
	var cfg FileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Loaded{}, err
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Loaded{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	var ov envOverrides
	if err := env.Parse(&ov); err != nil {
		return Loaded{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := applyOverrides(&cfg, ov); err != nil {
		return Loaded{}, err
	}

	clans, err := resolveClans(cfg.Clans)
	if err != nil {
		return Loaded{}, err
	}
	creds, err := resolveCredentials(cfg.Credentials)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Clans:       clans,
		Credentials: creds,
		API: coc.Config{
			BaseURL:     cfg.API.BaseURL,
			Timeout:     seconds(cfg.API.TimeoutSeconds),
			Concurrency: cfg.API.Concurrency,
			ClanTTL:     seconds(cfg.API.ClanTTL),
			PlayerTTL:   seconds(cfg.API.PlayerTTL),
			WarTTL:      seconds(cfg.API.WarTTL),
		},
		IPDetectURL: cfg.API.IPDetectURL,
		IPCacheTTL:  seconds(cfg.API.IPCacheTTL),
		Runner: tracker.RunnerConfig{
			Intervals: tracker.Intervals{
				Member:  seconds(cfg.Tracking.CheckInterval),
				War:     seconds(cfg.Tracking.WarPollInterval),
				Upgrade: seconds(cfg.Tracking.UpgradeCheckInterval),
			},
			Membership: tracker.MembershipConfig{
				DebounceThreshold: cfg.Tracking.LeaveDebounceCount,
				SkipEmpty:         resolveSkipEmpty(cfg.Tracking.SkipEmptyMemberList),
			},
			Upgrade: tracker.UpgradeConfig{
				HeroAlertMin: cfg.Tracking.HeroAlertMin,
			},
		},
		SnapshotDay: cfg.Tracking.MonthlySnapshotDay,
		QueueSize:   cfg.Tracking.EventQueueSize,
		Storage:     cfg.Storage,
		Profiling:   cfg.Profiling,
	}

	if loaded.IPDetectURL == "" {
		loaded.IPDetectURL = defaultIPDetectURL
	}
	if loaded.IPCacheTTL <= 0 {
		loaded.IPCacheTTL = seconds(defaultIPCacheTTL)
	}
	if loaded.SnapshotDay <= 0 {
		loaded.SnapshotDay = 1
	}
	if loaded.QueueSize <= 0 {
		loaded.QueueSize = defaultQueueSize
	}
	return loaded, nil
}

func applyOverrides(cfg *FileConfig, ov envOverrides) error {
	if ov.APIKeys != "" {
		keys := map[string]string{}
		if err := json.Unmarshal([]byte(ov.APIKeys), &keys); err != nil {
			return fmt.Errorf("parse COC_API_KEYS: %w", err)
		}
		cfg.Credentials = keys
	} else if ov.APIKey != "" && len(cfg.Credentials) == 0 {
		cfg.Credentials = map[string]string{credential.Wildcard: ov.APIKey}
	}

	if ov.BaseURL != "" {
		cfg.API.BaseURL = ov.BaseURL
	}
	if ov.Timeout > 0 {
		cfg.API.TimeoutSeconds = ov.Timeout
	}
	if ov.Concurrency > 0 {
		cfg.API.Concurrency = ov.Concurrency
	}
	if ov.IPDetectURL != "" {
		cfg.API.IPDetectURL = ov.IPDetectURL
	}
	if ov.IPCacheTTL > 0 {
		cfg.API.IPCacheTTL = ov.IPCacheTTL
	}
	if ov.ClanTTL > 0 {
		cfg.API.ClanTTL = ov.ClanTTL
	}
	if ov.PlayerTTL > 0 {
		cfg.API.PlayerTTL = ov.PlayerTTL
	}
	if ov.WarTTL > 0 {
		cfg.API.WarTTL = ov.WarTTL
	}
	if ov.CheckInterval > 0 {
		cfg.Tracking.CheckInterval = ov.CheckInterval
	}
	if ov.WarPollInterval > 0 {
		cfg.Tracking.WarPollInterval = ov.WarPollInterval
	}
	if ov.UpgradeCheckInterval > 0 {
		cfg.Tracking.UpgradeCheckInterval = ov.UpgradeCheckInterval
	}
	if ov.LeaveDebounceCount > 0 {
		cfg.Tracking.LeaveDebounceCount = ov.LeaveDebounceCount
	}
	if ov.SkipEmptyMemberList != nil {
		cfg.Tracking.SkipEmptyMemberList = ov.SkipEmptyMemberList
	}
	if ov.MonthlySnapshotDay > 0 {
		cfg.Tracking.MonthlySnapshotDay = ov.MonthlySnapshotDay
	}
	if ov.DataDir != "" {
		cfg.Storage.DataDir = ov.DataDir
	}
	if ov.PostgresDSN != "" {
		cfg.Storage.PostgresDSN = ov.PostgresDSN
	}
	return nil
}

func resolveClans(cfg []ClanConfig) ([]tracker.Clan, error) {
	if len(cfg) == 0 {
		return nil, fmt.Errorf("no clans configured")
	}
	seen := map[string]struct{}{}
	out := make([]tracker.Clan, 0, len(cfg))
	for _, c := range cfg {
		tag := NormalizeTag(c.Tag)
		if tag == "#" {
			return nil, fmt.Errorf("clan tag is empty")
		}
		if _, ok := seen[tag]; ok {
			return nil, fmt.Errorf("duplicate clan tag: %s", tag)
		}
		seen[tag] = struct{}{}
		name := c.Name
		if name == "" {
			name = tag
		}
		out = append(out, tracker.Clan{Name: name, Tag: tag})
	}
	return out, nil
}

// resolveCredentials orders identity-bound keys first (sorted for a
// deterministic failover order) and the wildcard key last.
func resolveCredentials(keys map[string]string) ([]credential.Credential, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no api credentials configured")
	}

	identities := make([]string, 0, len(keys))
	for identity, token := range keys {
		if token == "" {
			return nil, fmt.Errorf("empty token for identity %q", identity)
		}
		if identity != credential.Wildcard {
			identities = append(identities, identity)
		}
	}
	sort.Strings(identities)

	out := make([]credential.Credential, 0, len(keys))
	for _, identity := range identities {
		out = append(out, credential.Credential{Identity: identity, Token: keys[identity]})
	}
	if token, ok := keys[credential.Wildcard]; ok {
		out = append(out, credential.Credential{Identity: credential.Wildcard, Token: token})
	}
	return out, nil
}

func resolveSkipEmpty(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// NormalizeTag upper-cases a clan or player tag and ensures the leading '#'.
func NormalizeTag(tag string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if !strings.HasPrefix(tag, "#") {
		tag = "#" + tag
	}
	return tag
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
