package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"tallybot/pkg/logx"
)

func logxConfigFromEnv() logx.Config {
	return logx.Config{
		Level:    envDefault("LOG_LEVEL", "info"),
		Console:  true,
		FilePath: strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// FromEnv resolves the process configuration from environment variables
// and the settings file they point at. BOT_TOKEN is mandatory; everything
// else has a default or is optional.
func FromEnv() (*Config, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("%w: BOT_TOKEN", ErrMissing)
	}

	ids, err := parseUserIDs(os.Getenv("REQUIRED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("REQUIRED_USER_IDS: %w", err)
	}

	cfg := &Config{
		BotToken:       token,
		Timezone:       envDefault("TIMEZONE", "Europe/Moscow"),
		DefaultUserIDs: ids,
		SettingsPath:   envDefault("SETTINGS_PATH", "settings.json"),
		Store: StoreConfig{
			Path:        envDefault("DB_PATH", "data.db"),
			BusyTimeout: envDuration("DB_BUSY_TIMEOUT", 5*time.Second),
		},
		Logging: logxConfigFromEnv(),
	}

	if raw := strings.TrimSpace(os.Getenv("CHAT_ID")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAT_ID: %w", err)
		}
		cfg.FallbackChatID = &id
	}
	if raw := strings.TrimSpace(os.Getenv("REPORT_THREAD_ID")); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("REPORT_THREAD_ID: %w", err)
		}
		cfg.FallbackThreadID = &id
	}

	settings, raw, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings
	cfg.SettingsRaw = raw

	return cfg, nil
}

// LoadSettings reads and parses the settings file, returning the exact
// bytes the settings were parsed from alongside them. A missing file is
// not an error: it yields empty settings and the env fallback path
// applies.
func LoadSettings(path string) (Settings, []byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Settings{}, nil, nil
		}
		return Settings{}, nil, fmt.Errorf("read settings %q: %w", path, err)
	}
	s, err := ParseSettings(path, b)
	if err != nil {
		return Settings{}, nil, err
	}
	return s, b, nil
}

// ParseSettings decodes settings content. YAML is accepted alongside JSON
// by coercing it to JSON first, so struct tags stay single-sourced.
func ParseSettings(path string, b []byte) (Settings, error) {
	jb, err := coerceToJSON(path, b)
	if err != nil {
		return Settings{}, fmt.Errorf("parse settings %q: %w", path, err)
	}

	var s Settings
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %q: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Settings{}, fmt.Errorf("parse settings %q: trailing data", path)
		}
		return Settings{}, fmt.Errorf("parse settings %q: %w", path, err)
	}
	return s, nil
}

func coerceToJSON(path string, b []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return []byte("{}"), nil
	}
	ext := strings.ToLower(path)
	if strings.HasSuffix(ext, ".yaml") || strings.HasSuffix(ext, ".yml") || trimmed[0] != '{' {
		var v any
		if err := yaml.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return json.Marshal(v)
	}
	return b, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []int64
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad user id %q: %w", item, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return def
	}
	return d
}
