// Package config loads the settings of the ema-studio command from an
// optional YAML file and the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	TranscriberBackend  = "backend"
	TranscriberDeepgram = "deepgram"

	DialogueBackend = "backend"
	DialogueGroq    = "groq"

	SnapshotsNone   = "none"
	SnapshotsMemory = "memory"
	SnapshotsSQLite = "sqlite"
	SnapshotsRedis  = "redis"
)

const (
	DefaultBackendURL    = "http://localhost:8000"
	DefaultSQLiteFile    = "ema-studio.db"
	DefaultRedisAddr     = "localhost:6379"
	DefaultSnapshotTTL   = 24 * time.Hour
	DefaultMinUtterance  = 600 * time.Millisecond
	DefaultStepTimeout   = 3 * time.Minute
	DefaultAudioDuration = 20 * time.Second
)

type Config struct {
	Backend   Backend   `yaml:"backend"`
	Speech    Speech    `yaml:"speech"`
	Dialogue  Dialogue  `yaml:"dialogue"`
	Snapshots Snapshots `yaml:"snapshots"`
	Session   Session   `yaml:"session"`
}

type Backend struct {
	URL         string `yaml:"url"`
	AccessToken string `yaml:"access_token"`
}

type Speech struct {
	// Transcriber is either "backend" or "deepgram".
	Transcriber string `yaml:"transcriber"`
	Language    string `yaml:"language"`
	Deepgram    struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"deepgram"`
}

type Dialogue struct {
	// Provider is either "backend" or "groq".
	Provider string `yaml:"provider"`
	Groq     struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"groq"`
}

type Snapshots struct {
	Store     string        `yaml:"store"`
	SQLiteDSN string        `yaml:"sqlite_dsn"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
	// Key identifies this terminal's transcript. A random key is used when
	// empty.
	Key string `yaml:"key"`
}

type Session struct {
	MinUtterance  time.Duration `yaml:"min_utterance"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	AudioDuration time.Duration `yaml:"audio_duration"`
}

// Load reads path, when given, overlays the environment and applies
// defaults for everything left unset.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.overlayEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlayEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"EMA_BACKEND_URL":    &c.Backend.URL,
		"EMA_ACCESS_TOKEN":   &c.Backend.AccessToken,
		"EMA_TRANSCRIBER":    &c.Speech.Transcriber,
		"EMA_LANGUAGE":       &c.Speech.Language,
		"DEEPGRAM_API_KEY":   &c.Speech.Deepgram.APIKey,
		"EMA_DIALOGUE":       &c.Dialogue.Provider,
		"GROQ_API_KEY":       &c.Dialogue.Groq.APIKey,
		"GROQ_MODEL":         &c.Dialogue.Groq.Model,
		"EMA_SNAPSHOT_STORE": &c.Snapshots.Store,
		"EMA_SQLITE_DSN":     &c.Snapshots.SQLiteDSN,
		"EMA_REDIS_ADDR":     &c.Snapshots.RedisAddr,
		"EMA_SNAPSHOT_KEY":   &c.Snapshots.Key,
	}
	for name, target := range strs {
		if value, ok := lookup(name); ok && value != "" {
			*target = value
		}
	}

	durations := map[string]*time.Duration{
		"EMA_SNAPSHOT_TTL":   &c.Snapshots.TTL,
		"EMA_STEP_TIMEOUT":   &c.Session.StepTimeout,
		"EMA_AUDIO_DURATION": &c.Session.AudioDuration,
	}
	for name, target := range durations {
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return errors.Wrapf(err, "parse %s", name)
		}
		*target = d
	}

	if value, ok := lookup("EMA_MIN_UTTERANCE_MS"); ok && value != "" {
		ms, err := strconv.Atoi(value)
		if err != nil {
			return errors.Wrap(err, "parse EMA_MIN_UTTERANCE_MS")
		}
		c.Session.MinUtterance = time.Duration(ms) * time.Millisecond
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Backend.URL == "" {
		c.Backend.URL = DefaultBackendURL
	}
	c.Speech.Transcriber = strings.ToLower(strings.TrimSpace(c.Speech.Transcriber))
	if c.Speech.Transcriber == "" {
		c.Speech.Transcriber = TranscriberBackend
	}
	c.Dialogue.Provider = strings.ToLower(strings.TrimSpace(c.Dialogue.Provider))
	if c.Dialogue.Provider == "" {
		c.Dialogue.Provider = DialogueBackend
	}
	c.Snapshots.Store = strings.ToLower(strings.TrimSpace(c.Snapshots.Store))
	if c.Snapshots.Store == "" {
		c.Snapshots.Store = SnapshotsMemory
	}
	if c.Snapshots.Store == SnapshotsRedis && c.Snapshots.RedisAddr == "" {
		c.Snapshots.RedisAddr = DefaultRedisAddr
	}
	if c.Snapshots.Store == SnapshotsSQLite && c.Snapshots.SQLiteDSN == "" {
		c.Snapshots.SQLiteDSN = DefaultSQLiteFile
	}
	if c.Snapshots.TTL == 0 {
		c.Snapshots.TTL = DefaultSnapshotTTL
	}
	if c.Session.MinUtterance == 0 {
		c.Session.MinUtterance = DefaultMinUtterance
	}
	if c.Session.StepTimeout == 0 {
		c.Session.StepTimeout = DefaultStepTimeout
	}
	if c.Session.AudioDuration == 0 {
		c.Session.AudioDuration = DefaultAudioDuration
	}
}

// Validate rejects unknown providers and missing credentials.
func (c *Config) Validate() error {
	switch c.Speech.Transcriber {
	case TranscriberBackend:
	case TranscriberDeepgram:
		if c.Speech.Deepgram.APIKey == "" {
			return errors.New("deepgram transcriber needs DEEPGRAM_API_KEY")
		}
	default:
		return errors.Errorf("unknown transcriber %q", c.Speech.Transcriber)
	}

	switch c.Dialogue.Provider {
	case DialogueBackend:
	case DialogueGroq:
		if c.Dialogue.Groq.APIKey == "" {
			return errors.New("groq dialogue needs GROQ_API_KEY")
		}
	default:
		return errors.Errorf("unknown dialogue provider %q", c.Dialogue.Provider)
	}

	switch c.Snapshots.Store {
	case SnapshotsNone, SnapshotsMemory, SnapshotsRedis, SnapshotsSQLite:
	default:
		return errors.Errorf("unknown snapshot store %q", c.Snapshots.Store)
	}

	if c.Session.MinUtterance < 0 || c.Session.StepTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// Redacted returns a copy with every credential masked.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	mask(&c.Backend.AccessToken)
	mask(&c.Speech.Deepgram.APIKey)
	mask(&c.Dialogue.Groq.APIKey)
	return c
}
