// Package registry holds the resolved, immutable set of deadlines and
// tracked chat targets. It is built once from configuration (and rebuilt
// wholesale on a settings reload); after that it is read-only and safe
// for unsynchronized concurrent reads.
package registry

import (
	"fmt"
	"strconv"
	"strings"

	"tallybot/internal/clock"
	"tallybot/internal/config"
)

// Defaults applied when the settings file defines no deadlines.
const (
	DefaultDeadlineKey   = "daily"
	DefaultDeadlineTag   = "#Report"
	DefaultDeadlineTitle = "Daily report"
)

var defaultCutoff = config.HourMinute{Hour: 18, Minute: 0}

// UserRef is one required user. Name and Handle may be empty.
type UserRef struct {
	ID     int64
	Name   string
	Handle string
}

// Display renders the user for humans: handle > name > raw id.
func (u UserRef) Display() string {
	if h := strings.TrimPrefix(strings.TrimSpace(u.Handle), "@"); h != "" {
		return "@" + h
	}
	if u.Name != "" {
		return u.Name
	}
	return strconv.FormatInt(u.ID, 10)
}

// Deadline is one recurring cutoff with its qualifying text tag.
type Deadline struct {
	Key           string
	Tag           string
	Title         string
	WeekdayCutoff config.HourMinute
	WeekendCutoff config.HourMinute
}

// CutoffFor selects the cutoff time for the given day type.
func (d Deadline) CutoffFor(dt clock.DayType) config.HourMinute {
	if dt == clock.Weekend {
		return d.WeekendCutoff
	}
	return d.WeekdayCutoff
}

// ChatTarget scopes tracked check-ins and summaries to a (chat, thread)
// pair. Required keeps configuration order.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
	Required []UserRef
}

// Registry is the resolved configuration. Deadlines and Chats keep the
// order they were defined in.
type Registry struct {
	Deadlines []Deadline
	Chats     []ChatTarget
}

// DeadlineByKey returns the deadline with the given key.
func (r *Registry) DeadlineByKey(key string) (Deadline, bool) {
	for _, d := range r.Deadlines {
		if d.Key == key {
			return d, true
		}
	}
	return Deadline{}, false
}

// ChatFor returns the chat target matching the (chat, thread) pair.
func (r *Registry) ChatFor(chatID int64, threadID int) (ChatTarget, bool) {
	for _, c := range r.Chats {
		if c.ChatID == chatID && c.ThreadID == threadID {
			return c, true
		}
	}
	return ChatTarget{}, false
}

// MatchDeadlines returns every deadline whose tag occurs in text.
// Matching is a plain case-sensitive substring test with no word
// boundaries; one message can satisfy several deadlines at once.
func (r *Registry) MatchDeadlines(text string) []Deadline {
	var matched []Deadline
	for _, d := range r.Deadlines {
		if d.Tag != "" && strings.Contains(text, d.Tag) {
			matched = append(matched, d)
		}
	}
	return matched
}

// Resolve builds a registry from the loaded configuration and the given
// settings (which may be a hot-reloaded version of cfg.Settings).
//
// Resolution policy:
//   - Structured deadlines are used as-is (title defaults to key, cutoffs
//     default to 18:00); with none defined, a single default deadline is
//     synthesized.
//   - Per-chat required users fall back to the process-wide default list.
//   - With no structured chats, a single chat target is synthesized from
//     the CHAT_ID/REPORT_THREAD_ID scalars; either being absent is fatal.
func Resolve(cfg *config.Config, settings config.Settings) (*Registry, error) {
	deadlines, err := resolveDeadlines(settings.Deadlines)
	if err != nil {
		return nil, err
	}
	chats, err := resolveChats(cfg, settings)
	if err != nil {
		return nil, err
	}
	return &Registry{Deadlines: deadlines, Chats: chats}, nil
}

func resolveDeadlines(specs []config.DeadlineSpec) ([]Deadline, error) {
	if len(specs) == 0 {
		return []Deadline{{
			Key:           DefaultDeadlineKey,
			Tag:           DefaultDeadlineTag,
			Title:         DefaultDeadlineTitle,
			WeekdayCutoff: defaultCutoff,
			WeekendCutoff: defaultCutoff,
		}}, nil
	}

	seen := make(map[string]bool, len(specs))
	out := make([]Deadline, 0, len(specs))
	for i, spec := range specs {
		if spec.Key == "" {
			return nil, fmt.Errorf("%w: deadlines[%d].key", config.ErrMissing, i)
		}
		if spec.Tag == "" {
			return nil, fmt.Errorf("%w: deadlines[%d].tag", config.ErrMissing, i)
		}
		if seen[spec.Key] {
			return nil, fmt.Errorf("duplicate deadline key %q", spec.Key)
		}
		seen[spec.Key] = true

		d := Deadline{
			Key:           spec.Key,
			Tag:           spec.Tag,
			Title:         spec.Title,
			WeekdayCutoff: defaultCutoff,
			WeekendCutoff: defaultCutoff,
		}
		if d.Title == "" {
			d.Title = spec.Key
		}
		if spec.WeekdayTime != nil {
			d.WeekdayCutoff = *spec.WeekdayTime
		}
		if spec.WeekendTime != nil {
			d.WeekendCutoff = *spec.WeekendTime
		}
		out = append(out, d)
	}
	return out, nil
}

func resolveChats(cfg *config.Config, settings config.Settings) ([]ChatTarget, error) {
	if len(settings.Chats) > 0 {
		out := make([]ChatTarget, 0, len(settings.Chats))
		for _, spec := range settings.Chats {
			out = append(out, ChatTarget{
				ChatID:   spec.ChatID,
				ThreadID: spec.ThreadID,
				Required: resolveUsers(spec.RequiredUsers, cfg.DefaultUserIDs),
			})
		}
		return out, nil
	}

	// Degenerate single-chat path: both scalars are mandatory.
	if cfg.FallbackChatID == nil {
		return nil, fmt.Errorf("%w: CHAT_ID (settings define no chats)", config.ErrMissing)
	}
	if cfg.FallbackThreadID == nil {
		return nil, fmt.Errorf("%w: REPORT_THREAD_ID (settings define no chats)", config.ErrMissing)
	}
	return []ChatTarget{{
		ChatID:   *cfg.FallbackChatID,
		ThreadID: *cfg.FallbackThreadID,
		Required: resolveUsers(settings.RequiredUsers, cfg.DefaultUserIDs),
	}}, nil
}

func resolveUsers(specs []config.UserSpec, fallbackIDs []int64) []UserRef {
	if len(specs) > 0 {
		out := make([]UserRef, 0, len(specs))
		for _, u := range specs {
			out = append(out, UserRef{ID: u.ID, Name: u.Name, Handle: u.Handle})
		}
		return out
	}
	out := make([]UserRef, 0, len(fallbackIDs))
	for _, id := range fallbackIDs {
		out = append(out, UserRef{ID: id})
	}
	return out
}
