// Package summary builds and delivers the reported/missing summary for
// one deadline occurrence. The scheduler invokes Deliver at each cutoff;
// the status command uses StatusText for the same computation on demand.
package summary

import (
	"context"
	"fmt"

	"tallybot/internal/clock"
	"tallybot/internal/compliance"
	"tallybot/internal/registry"
	"tallybot/internal/store"
	"tallybot/internal/transport"
	"tallybot/pkg/logx"
)

// Report is the render-ready result for one (date, deadline, chat).
type Report struct {
	DeadlineTitle string
	DeadlineTag   string
	Reported      []registry.UserRef
	Missing       []registry.UserRef
}

type Service struct {
	store  *store.Store
	clock  *clock.Provider
	sender transport.Sender
	log    logx.Logger
}

func New(st *store.Store, ck *clock.Provider, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: st, clock: ck, sender: sender, log: log}
}

// Build computes the partition for one occurrence. Deterministic given
// store state.
func (s *Service) Build(ctx context.Context, date string, d registry.Deadline, chat registry.ChatTarget) (Report, error) {
	rows, err := s.store.ReportersFor(ctx, date, d.Key, chat.ChatID, chat.ThreadID)
	if err != nil {
		return Report{}, fmt.Errorf("summary: %w", err)
	}
	reporters := make(map[int64]registry.UserRef, len(rows))
	for id, r := range rows {
		reporters[id] = registry.UserRef{ID: id, Name: r.Name, Handle: r.Handle}
	}
	res := compliance.Evaluate(chat.Required, reporters)
	return Report{
		DeadlineTitle: d.Title,
		DeadlineTag:   d.Tag,
		Reported:      res.Reported,
		Missing:       res.Missing,
	}, nil
}

// Deliver is the scheduled job body. A failed store read aborts this
// single occurrence; other triggers are unaffected.
func (s *Service) Deliver(ctx context.Context, d registry.Deadline, chat registry.ChatTarget) {
	date := s.clock.Today()
	rep, err := s.Build(ctx, date, d, chat)
	if err != nil {
		s.log.Error("summary aborted",
			logx.String("deadline", d.Key),
			logx.Int64("chat", chat.ChatID),
			logx.Err(err))
		return
	}

	to := transport.ChatTarget{ChatID: chat.ChatID, ThreadID: chat.ThreadID}
	if err := s.sender.SendText(ctx, to, renderDeadline(rep).String(), htmlOpts()); err != nil {
		s.log.Error("summary send failed",
			logx.String("deadline", d.Key),
			logx.Int64("chat", chat.ChatID),
			logx.Err(err))
		return
	}
	s.log.Info("summary delivered",
		logx.String("deadline", d.Key),
		logx.Int64("chat", chat.ChatID),
		logx.Int("reported", len(rep.Reported)),
		logx.Int("missing", len(rep.Missing)))
}

// StatusText renders today's standing for every deadline of one chat
// target.
func (s *Service) StatusText(ctx context.Context, deadlines []registry.Deadline, chat registry.ChatTarget) (string, error) {
	date := s.clock.Today()
	reports := make([]Report, 0, len(deadlines))
	for _, d := range deadlines {
		rep, err := s.Build(ctx, date, d, chat)
		if err != nil {
			return "", err
		}
		reports = append(reports, rep)
	}
	return renderStatus(reports).String(), nil
}

func htmlOpts() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
}
