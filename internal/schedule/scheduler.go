// Package schedule drives the recurring deadline triggers. Each
// (deadline, day type, chat target) combination owns one cron entry in
// the configured time zone; re-applying a registry upserts entries by
// their structured key, so restarts and settings reloads replace
// triggers instead of duplicating them.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tallybot/internal/clock"
	"tallybot/internal/config"
	"tallybot/internal/registry"
	"tallybot/pkg/logx"
)

// Job is invoked at each fire instant with the triggering deadline and
// chat target bound. Fires run on their own goroutines (cron starts one
// per due entry), so a slow job never delays unrelated triggers.
type Job func(ctx context.Context, d registry.Deadline, chat registry.ChatTarget)

// TriggerKey identifies one recurring trigger. Using the structured key
// directly (instead of a concatenated string) keeps replacement
// collision-free.
type TriggerKey struct {
	DeadlineKey string
	DayType     clock.DayType
	ChatID      int64
	ThreadID    int
}

func (k TriggerKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d", k.DeadlineKey, k.DayType, k.ChatID, k.ThreadID)
}

type Scheduler struct {
	log logx.Logger
	job Job

	mu      sync.Mutex
	c       *cron.Cron
	entries map[TriggerKey]cron.EntryID
	runCtx  context.Context
}

func New(loc *time.Location, job Job, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		log:     log,
		job:     job,
		c:       cron.New(cron.WithLocation(loc)),
		entries: map[TriggerKey]cron.EntryID{},
		runCtx:  context.Background(),
	}
}

// Apply registers triggers for every deadline × chat combination in reg
// and removes triggers for combinations that no longer exist. Safe to
// call on a running scheduler (settings reload).
func (s *Scheduler) Apply(reg *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := map[TriggerKey]bool{}
	for _, d := range reg.Deadlines {
		for _, chat := range reg.Chats {
			for _, dt := range []clock.DayType{clock.Weekday, clock.Weekend} {
				key := TriggerKey{DeadlineKey: d.Key, DayType: dt, ChatID: chat.ChatID, ThreadID: chat.ThreadID}
				wanted[key] = true
				if err := s.upsertLocked(key, cronSpec(d.CutoffFor(dt), dt), d, chat); err != nil {
					return err
				}
			}
		}
	}

	for key, id := range s.entries {
		if !wanted[key] {
			s.c.Remove(id)
			delete(s.entries, key)
			s.log.Debug("trigger removed", logx.String("trigger", key.String()))
		}
	}
	return nil
}

func (s *Scheduler) upsertLocked(key TriggerKey, spec string, d registry.Deadline, chat registry.ChatTarget) error {
	if old, ok := s.entries[key]; ok {
		s.c.Remove(old)
	}
	id, err := s.c.AddFunc(spec, func() {
		s.mu.Lock()
		ctx := s.runCtx
		s.mu.Unlock()
		s.log.Info("deadline trigger fired",
			logx.String("trigger", key.String()),
			logx.String("title", d.Title))
		s.job(ctx, d, chat)
	})
	if err != nil {
		return fmt.Errorf("schedule: register %s (%q): %w", key, spec, err)
	}
	s.entries[key] = id
	s.log.Debug("trigger registered",
		logx.String("trigger", key.String()),
		logx.String("spec", spec))
	return nil
}

// Start begins firing triggers. ctx is handed to jobs as their base
// context.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	n := len(s.entries)
	s.mu.Unlock()
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("triggers", n))
}

// Stop halts the trigger clock, waiting for running fires up to ctx's
// deadline. Missed instants are not replayed on the next Start.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

// Triggers returns the currently registered keys, sorted for stable
// output.
func (s *Scheduler) Triggers() []TriggerKey {
	s.mu.Lock()
	keys := make([]TriggerKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// cronSpec converts a cutoff time into a 5-field cron expression limited
// to the calendar days of the given type.
func cronSpec(at config.HourMinute, dt clock.DayType) string {
	dow := "1-5"
	if dt == clock.Weekend {
		dow = "0,6"
	}
	return fmt.Sprintf("%d %d * * %s", at.Minute, at.Hour, dow)
}
