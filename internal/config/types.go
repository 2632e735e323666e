package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tallybot/pkg/logx"
)

// ErrMissing marks a fatal startup error: a mandatory setting is absent.
var ErrMissing = errors.New("missing required setting")

// Config is the fully resolved process configuration: environment scalars
// plus the parsed settings file. Environment scalars are startup-only;
// the settings file may be hot-reloaded via Manager.
type Config struct {
	BotToken string
	Timezone string

	// DefaultUserIDs is the process-wide required-user fallback
	// (REQUIRED_USER_IDS, comma separated).
	DefaultUserIDs []int64

	SettingsPath string

	// FallbackChatID/FallbackThreadID come from CHAT_ID/REPORT_THREAD_ID
	// and are only consulted when the settings file defines no chats.
	// nil means the variable was absent.
	FallbackChatID   *int64
	FallbackThreadID *int

	Store   StoreConfig
	Logging logx.Config

	// Settings is the parsed settings file; SettingsRaw holds the exact
	// bytes it was parsed from, for seeding the Manager change detector.
	Settings    Settings
	SettingsRaw []byte
}

// StoreConfig controls the sqlite report ledger.
type StoreConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// Settings is the structured multi-deadline/multi-chat definition file.
// It is accepted as JSON or YAML.
type Settings struct {
	Deadlines []DeadlineSpec `json:"deadlines"`
	Chats     []ChatSpec     `json:"chats"`

	// RequiredUsers is the top-level user list used by the synthesized
	// single-chat fallback when no chats are defined.
	RequiredUsers []UserSpec `json:"required_users"`
}

// DeadlineSpec defines one recurring deadline. Key and Tag are mandatory;
// Title defaults to Key and both cutoffs default to 18:00.
type DeadlineSpec struct {
	Key         string      `json:"key"`
	Tag         string      `json:"tag"`
	Title       string      `json:"title"`
	WeekdayTime *HourMinute `json:"weekday_time"`
	WeekendTime *HourMinute `json:"weekend_time"`
}

// ChatSpec defines one tracked chat/thread target.
type ChatSpec struct {
	ChatID        int64      `json:"chat_id"`
	ThreadID      int        `json:"report_thread_id"`
	RequiredUsers []UserSpec `json:"required_users"`
}

// UserSpec identifies a required user. Name and Handle are optional.
type UserSpec struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Handle string `json:"username"`
}

// HourMinute is a minute-resolution time of day, parsed from "HH:MM".
type HourMinute struct {
	Hour   int
	Minute int
}

func ParseHourMinute(s string) (HourMinute, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return HourMinute{}, fmt.Errorf("time must be in HH:MM format, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return HourMinute{}, fmt.Errorf("time must be in HH:MM format, got %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return HourMinute{}, fmt.Errorf("time must be in HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return HourMinute{}, fmt.Errorf("time out of range: %q", s)
	}
	return HourMinute{Hour: h, Minute: m}, nil
}

func (hm HourMinute) String() string {
	return fmt.Sprintf("%02d:%02d", hm.Hour, hm.Minute)
}

func (hm *HourMinute) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseHourMinute(s)
	if err != nil {
		return err
	}
	*hm = v
	return nil
}

func (hm HourMinute) MarshalJSON() ([]byte, error) {
	return json.Marshal(hm.String())
}
