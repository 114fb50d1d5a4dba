package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adventbot/internal/events"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/pkg/logx"
	"adventbot/pkg/tgui"
)

type fakeAdapter struct {
	sent []string
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.sent = append(a.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error { return nil }

func (a *fakeAdapter) FileURL(ctx context.Context, fileID string) (string, error) { return "", nil }

func newTestHandler(t *testing.T) (*Handler, *fakeAdapter, *storage.Registry, *events.Store) {
	t.Helper()
	dir := t.TempDir()
	reg, err := storage.Open(storage.Config{Path: filepath.Join(dir, "subs.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close() })
	store, err := events.Open(filepath.Join(dir, "events.json"), logx.Nop())
	if err != nil {
		t.Fatalf("events.Open: %v", err)
	}
	ad := &fakeAdapter{}
	h := NewHandler(ad, reg, store, logx.Nop())
	return h, ad, reg, store
}

func TestStartRegistersSubscriberAndShowsMenu(t *testing.T) {
	t.Parallel()
	h, ad, reg, _ := newTestHandler(t)
	ctx := context.Background()

	err := h.HandleUpdate(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: 100, FromID: 100, FromUsername: "masha", Text: "/start",
	}})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	ids, err := reg.ListIDs(ctx)
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != 100 {
		t.Fatalf("ids = %v, want [100]", ids)
	}
	if len(ad.sent) != 1 || !strings.Contains(ad.sent[0], "Привет, masha!") {
		t.Fatalf("welcome = %v", ad.sent)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	t.Parallel()
	h, _, reg, _ := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
			ChatID: 100, FromID: 100, FromUsername: "masha", Text: "/start",
		}}
		if err := h.HandleUpdate(ctx, up); err != nil {
			t.Fatalf("HandleUpdate: %v", err)
		}
	}
	ids, _ := reg.ListIDs(ctx)
	if len(ids) != 1 {
		t.Fatalf("ids = %v, want a single row", ids)
	}
}

func TestTodayCallback(t *testing.T) {
	t.Parallel()
	h, ad, _, store := newTestHandler(t)
	h.now = func() time.Time {
		return time.Date(2024, 12, 19, 12, 0, 0, 0, time.UTC)
	}
	if err := store.Put("2024-12-19", events.Event{Title: "Ёлка", Description: "Праздник"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	err := h.HandleUpdate(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: 100, FromID: 100, Data: tgui.Data(callbackNS, string(actToday), ""),
	}})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(ad.sent) != 1 || !strings.Contains(ad.sent[0], "Ёлка") {
		t.Fatalf("sent = %v", ad.sent)
	}
}

func TestTodayCallbackNoEvent(t *testing.T) {
	t.Parallel()
	h, ad, _, _ := newTestHandler(t)
	h.now = func() time.Time {
		return time.Date(2024, 12, 19, 12, 0, 0, 0, time.UTC)
	}

	err := h.HandleUpdate(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: 100, FromID: 100, Data: tgui.Data(callbackNS, string(actToday), ""),
	}})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(ad.sent) != 1 || !strings.Contains(ad.sent[0], "сегодня") {
		t.Fatalf("sent = %v", ad.sent)
	}
}

func TestForeignNamespaceCallbackIgnored(t *testing.T) {
	t.Parallel()
	h, ad, _, _ := newTestHandler(t)

	err := h.HandleUpdate(context.Background(), kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb", ChatID: 100, FromID: 100, Data: "adm:menu",
	}})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("sent = %v, want none", ad.sent)
	}
}

func TestNonStartTextIgnored(t *testing.T) {
	t.Parallel()
	h, ad, reg, _ := newTestHandler(t)

	err := h.HandleUpdate(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: 100, FromID: 100, Text: "hello there",
	}})
	if err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(ad.sent) != 0 {
		t.Fatalf("sent = %v, want none", ad.sent)
	}
	ids, _ := reg.ListIDs(context.Background())
	if len(ids) != 0 {
		t.Fatalf("ids = %v, want none", ids)
	}
}
