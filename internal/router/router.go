// Package router consumes inbound transport messages: slash commands are
// dispatched, everything else is screened as a potential check-in.
package router

import (
	"context"
	"strings"
	"sync/atomic"

	"tallybot/internal/clock"
	"tallybot/internal/registry"
	"tallybot/internal/store"
	"tallybot/internal/summary"
	"tallybot/internal/transport"
	"tallybot/pkg/logx"
)

const startReply = "I track check-ins in this topic. " +
	"Post your reports here and I will publish who reported at each deadline."

type Router struct {
	log     logx.Logger
	store   *store.Store
	clock   *clock.Provider
	summary *summary.Service
	sender  transport.Sender

	// reg is swapped wholesale on settings reload; handlers read it once
	// per message.
	reg atomic.Pointer[registry.Registry]
}

func New(reg *registry.Registry, st *store.Store, ck *clock.Provider, sum *summary.Service, sender transport.Sender, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{log: log, store: st, clock: ck, summary: sum, sender: sender}
	r.reg.Store(reg)
	return r
}

// SetRegistry installs a newly resolved registry (settings reload).
func (r *Router) SetRegistry(reg *registry.Registry) { r.reg.Store(reg) }

func (r *Router) Registry() *registry.Registry { return r.reg.Load() }

// Run consumes messages until ctx is done or in closes.
func (r *Router) Run(ctx context.Context, in <-chan transport.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			r.Handle(ctx, m)
		}
	}
}

func (r *Router) Handle(ctx context.Context, m transport.Message) {
	switch cmd := commandName(m.Text); cmd {
	case "start", "reportstatus":
		r.handleCommand(ctx, cmd, m)
	default:
		// Only the known commands bypass capture. Anything else that
		// happens to start with "/" is still plain text and may carry a
		// qualifying tag.
		r.captureCheckin(ctx, m)
	}
}

func (r *Router) handleCommand(ctx context.Context, cmd string, m transport.Message) {
	switch cmd {
	case "start":
		r.reply(ctx, m, startReply, nil)
	case "reportstatus":
		reg := r.reg.Load()
		chat, ok := reg.ChatFor(m.ChatID, m.ThreadID)
		if !ok {
			r.log.Debug("status requested from untracked target",
				logx.Int64("chat", m.ChatID), logx.Int("thread", m.ThreadID))
			return
		}
		text, err := r.summary.StatusText(ctx, reg.Deadlines, chat)
		if err != nil {
			r.log.Error("status failed", logx.Int64("chat", m.ChatID), logx.Err(err))
			return
		}
		r.reply(ctx, m, text, &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	}
}

// captureCheckin records a qualifying message against every deadline
// whose tag it contains. Non-matching messages, untracked threads,
// automated senders and empty text are normal filtering, not errors.
func (r *Router) captureCheckin(ctx context.Context, m transport.Message) {
	reg := r.reg.Load()
	if _, ok := reg.ChatFor(m.ChatID, m.ThreadID); !ok {
		return
	}
	if m.SenderID == 0 || m.SenderIsBot {
		return
	}
	if m.Text == "" {
		return
	}
	matched := reg.MatchDeadlines(m.Text)
	if len(matched) == 0 {
		return
	}

	date := r.clock.Today()
	for _, d := range matched {
		err := r.store.RecordCheckin(ctx, store.Checkin{
			Date:        date,
			UserID:      m.SenderID,
			DeadlineKey: d.Key,
			ChatID:      m.ChatID,
			ThreadID:    m.ThreadID,
			Handle:      m.SenderHandle,
			Name:        m.SenderName,
		})
		if err != nil {
			// The check-in is lost for this attempt; the user shows as
			// missing until they resubmit.
			r.log.Error("check-in write failed",
				logx.String("deadline", d.Key),
				logx.Int64("user", m.SenderID),
				logx.Err(err))
			continue
		}
		r.log.Debug("check-in recorded",
			logx.String("deadline", d.Key),
			logx.Int64("user", m.SenderID),
			logx.Int64("chat", m.ChatID),
			logx.Int("thread", m.ThreadID))
	}
}

func (r *Router) reply(ctx context.Context, m transport.Message, text string, opt *transport.SendOptions) {
	to := transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	if err := r.sender.SendText(ctx, to, text, opt); err != nil {
		r.log.Error("reply failed", logx.Int64("chat", m.ChatID), logx.Err(err))
	}
}

// commandName extracts the bare command from "/cmd" or "/cmd@botname",
// returning "" for non-command text.
func commandName(text string) string {
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	cmd := text[1:]
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd
}
