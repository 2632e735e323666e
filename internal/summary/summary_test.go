package summary

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tallybot/internal/clock"
	"tallybot/internal/registry"
	"tallybot/internal/store"
	"tallybot/internal/transport"
	"tallybot/pkg/logx"
)

type sent struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type fakeSender struct {
	mu    sync.Mutex
	sends []sent
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{to: to, text: text, opt: opt})
	return nil
}

func newService(t *testing.T) (*Service, *store.Store, *fakeSender, *clock.Provider) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "data.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	ck, err := clock.New("UTC")
	if err != nil {
		t.Fatalf("clock.New: %v", err)
	}
	sender := &fakeSender{}
	return New(st, ck, sender, logx.Nop()), st, sender, ck
}

var (
	testDeadline = registry.Deadline{Key: "daily", Tag: "#Report", Title: "Daily report"}
	testChat     = registry.ChatTarget{
		ChatID:   100,
		ThreadID: 5,
		Required: []registry.UserRef{{ID: 1, Handle: "alice"}, {ID: 2}},
	}
)

func TestDeliverSummary(t *testing.T) {
	t.Parallel()
	svc, st, sender, ck := newService(t)
	ctx := context.Background()

	// User 1 checked in before the cutoff; user 2 did not.
	err := st.RecordCheckin(ctx, store.Checkin{
		Date: ck.Today(), UserID: 1, DeadlineKey: "daily", ChatID: 100, ThreadID: 5, Handle: "alice",
	})
	if err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}

	svc.Deliver(ctx, testDeadline, testChat)

	if len(sender.sends) != 1 {
		t.Fatalf("expected one send, got %d", len(sender.sends))
	}
	got := sender.sends[0]
	if got.to != (transport.ChatTarget{ChatID: 100, ThreadID: 5}) {
		t.Fatalf("unexpected target: %+v", got.to)
	}
	if got.opt == nil || got.opt.ParseMode != "HTML" {
		t.Fatalf("expected HTML parse mode, got %+v", got.opt)
	}
	if !strings.Contains(got.text, "✅ @alice") {
		t.Fatalf("reported half missing from text:\n%s", got.text)
	}
	if !strings.Contains(got.text, "❌ 2") {
		t.Fatalf("missing half missing from text:\n%s", got.text)
	}
}

func TestBuildEmptyStore(t *testing.T) {
	t.Parallel()
	svc, _, _, ck := newService(t)

	rep, err := svc.Build(context.Background(), ck.Today(), testDeadline, testChat)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(rep.Reported) != 0 || len(rep.Missing) != 2 {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestStatusTextCoversAllDeadlines(t *testing.T) {
	t.Parallel()
	svc, st, _, ck := newService(t)
	ctx := context.Background()

	deadlines := []registry.Deadline{
		testDeadline,
		{Key: "weekly", Tag: "#Weekly", Title: "Weekly summary"},
	}
	err := st.RecordCheckin(ctx, store.Checkin{
		Date: ck.Today(), UserID: 2, DeadlineKey: "weekly", ChatID: 100, ThreadID: 5, Name: "Bob B",
	})
	if err != nil {
		t.Fatalf("RecordCheckin: %v", err)
	}

	text, err := svc.StatusText(ctx, deadlines, testChat)
	if err != nil {
		t.Fatalf("StatusText: %v", err)
	}
	for _, want := range []string{"Daily report", "Weekly summary", "Bob B"} {
		if !strings.Contains(text, want) {
			t.Fatalf("status text missing %q:\n%s", want, text)
		}
	}
}

func TestRenderDeadline(t *testing.T) {
	t.Parallel()
	rep := Report{
		DeadlineTitle: "Daily report",
		DeadlineTag:   "#Report",
		Reported:      []registry.UserRef{{ID: 1, Handle: "alice"}},
		Missing:       []registry.UserRef{{ID: 2, Name: "Bob & Co"}},
	}
	got := renderDeadline(rep).String()
	want := "<b>Deadline passed</b>: Daily report\n\n" +
		"<b>Reported</b>:\n• ✅ @alice (<code>1</code>)\n\n" +
		"<b>Missing</b>:\n• ❌ Bob &amp; Co (<code>2</code>)"
	if got != want {
		t.Fatalf("renderDeadline:\ngot  %q\nwant %q", got, want)
	}
}

func TestRenderEmptyLists(t *testing.T) {
	t.Parallel()
	got := renderDeadline(Report{DeadlineTitle: "t", DeadlineTag: "#t"}).String()
	if !strings.Contains(got, "<b>Reported</b>:\n—") || !strings.Contains(got, "<b>Missing</b>:\n—") {
		t.Fatalf("empty lists should render as dashes:\n%s", got)
	}
}
