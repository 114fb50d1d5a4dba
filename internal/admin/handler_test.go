package admin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"adventbot/internal/broadcast"
	"adventbot/internal/events"
	"adventbot/internal/security"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/pkg/logx"
	"adventbot/pkg/tgui"
)

const operatorID int64 = 42

type fakeAdapter struct {
	sent    []string
	answers []string
	fileURL string
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.sent = append(a.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error {
	a.answers = append(a.answers, text)
	return nil
}

func (a *fakeAdapter) FileURL(ctx context.Context, fileID string) (string, error) {
	if a.fileURL == "" {
		return "", errors.New("no file")
	}
	return a.fileURL, nil
}

func (a *fakeAdapter) lastSent(t *testing.T) string {
	t.Helper()
	if len(a.sent) == 0 {
		t.Fatal("no outbound messages")
	}
	return a.sent[len(a.sent)-1]
}

type fakeDirectory struct {
	subs []storage.Subscriber
}

func (d *fakeDirectory) List(ctx context.Context) ([]storage.Subscriber, error) {
	return d.subs, nil
}

func (d *fakeDirectory) ListIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(d.subs))
	for _, s := range d.subs {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

type fakeBroadcaster struct {
	gotText    string
	gotTargets []kit.ChatTarget
	report     broadcast.Report
}

func (b *fakeBroadcaster) Run(ctx context.Context, name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions) broadcast.Report {
	b.gotText = text
	b.gotTargets = targets
	return b.report
}

type fixture struct {
	h     *Handler
	ad    *fakeAdapter
	store *events.Store
	dir   *fakeDirectory
	bc    *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := events.Open(filepath.Join(t.TempDir(), "events.json"), logx.Nop())
	if err != nil {
		t.Fatalf("events.Open: %v", err)
	}
	ad := &fakeAdapter{}
	dir := &fakeDirectory{}
	bc := &fakeBroadcaster{}
	guard := security.NewGuard([]int64{operatorID}, nil, logx.Nop())
	h := NewHandler(ad, guard, store, dir, bc, logx.Nop())
	return &fixture{h: h, ad: ad, store: store, dir: dir, bc: bc}
}

func msgFrom(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: from, FromID: from, FromUsername: "op", Text: text,
	}}
}

func callbackFrom(from int64, act action, payload string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", ChatID: from, FromID: from, FromUsername: "op",
		Data: tgui.Data(callbackNS, string(act), payload),
	}}
}

func handle(t *testing.T, f *fixture, up kit.Update) {
	t.Helper()
	if err := f.h.HandleUpdate(context.Background(), up); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
}

func TestAddEventFlowEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handle(t, f, callbackFrom(operatorID, actAdd, ""))
	for _, input := range []string{"2024-12-19", "Ёлка на площади", "Праздничное мероприятие", "/skip", "/skip"} {
		handle(t, f, msgFrom(operatorID, input))
	}

	ev, ok := f.store.Get("2024-12-19")
	if !ok {
		t.Fatal("event not created")
	}
	if ev.Title != "Ёлка на площади" {
		t.Fatalf("Title = %q", ev.Title)
	}
	if ev.Description != "Праздничное мероприятие" {
		t.Fatalf("Description = %q", ev.Description)
	}
	if ev.Image != "" || ev.MapURL != "" {
		t.Fatalf("skipped fields must stay unset: image=%q map=%q", ev.Image, ev.MapURL)
	}
	if !strings.Contains(f.ad.lastSent(t), "Событие добавлено") {
		t.Fatalf("missing summary, got %q", f.ad.lastSent(t))
	}
	if _, active := f.h.sessions.get(operatorID); active {
		t.Fatal("session must be cleared after commit")
	}
}

func TestAddEventRejectsBadDate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handle(t, f, callbackFrom(operatorID, actAdd, ""))
	handle(t, f, msgFrom(operatorID, "19-12-2024"))

	sess, ok := f.h.sessions.get(operatorID)
	if !ok || sess.step != StepDate {
		t.Fatal("wizard must remain in the date step")
	}
	if f.store.Len() != 0 {
		t.Fatal("no entry may be created on invalid date")
	}
	if !strings.Contains(f.ad.lastSent(t), "Неверный формат даты") {
		t.Fatalf("expected format error, got %q", f.ad.lastSent(t))
	}

	// A valid date afterwards advances normally.
	handle(t, f, msgFrom(operatorID, "2024-12-19"))
	sess, _ = f.h.sessions.get(operatorID)
	if sess.step != StepTitle {
		t.Fatalf("step = %v, want StepTitle", sess.step)
	}
}

func TestAddEventInvalidLinkReprompts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handle(t, f, callbackFrom(operatorID, actAdd, ""))
	handle(t, f, msgFrom(operatorID, "2024-12-19"))
	handle(t, f, msgFrom(operatorID, "t"))
	handle(t, f, msgFrom(operatorID, "d"))
	handle(t, f, msgFrom(operatorID, "not-a-link"))

	sess, _ := f.h.sessions.get(operatorID)
	if sess.step != StepImage {
		t.Fatalf("step = %v, want StepImage after invalid link", sess.step)
	}
	handle(t, f, msgFrom(operatorID, "https://example.com/pic.jpg"))
	sess, _ = f.h.sessions.get(operatorID)
	if sess.step != StepMap || sess.image != "https://example.com/pic.jpg" {
		t.Fatalf("session = %+v, want image stored and StepMap", sess)
	}
}

func TestPhotoAtImageStep(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ad.fileURL = "https://api.telegram.org/file/bot123/photos/1.jpg"

	handle(t, f, callbackFrom(operatorID, actAdd, ""))
	handle(t, f, msgFrom(operatorID, "2024-12-19"))
	handle(t, f, msgFrom(operatorID, "t"))
	handle(t, f, msgFrom(operatorID, "d"))

	handle(t, f, kit.Update{Kind: kit.UpdatePhoto, Message: &kit.Message{
		ChatID: operatorID, FromID: operatorID, FromUsername: "op", PhotoID: "file123",
	}})

	sess, _ := f.h.sessions.get(operatorID)
	if sess.step != StepMap {
		t.Fatalf("step = %v, want StepMap after photo", sess.step)
	}
	if sess.image != f.ad.fileURL {
		t.Fatalf("image = %q, want resolved file URL", sess.image)
	}
}

func TestFreeTextWithoutSessionIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handle(t, f, msgFrom(operatorID, "random text"))
	if len(f.ad.sent) != 0 {
		t.Fatalf("expected no outbound messages, got %v", f.ad.sent)
	}
}

func TestNonOperatorIsDeniedAndNothingMutates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	const intruder int64 = 7

	handle(t, f, callbackFrom(intruder, actAdd, ""))
	handle(t, f, msgFrom(intruder, "/start"))
	handle(t, f, kit.Update{Kind: kit.UpdatePhoto, Message: &kit.Message{
		ChatID: intruder, FromID: intruder, PhotoID: "x",
	}})

	if _, active := f.h.sessions.get(intruder); active {
		t.Fatal("non-operator must not get a wizard session")
	}
	if f.store.Len() != 0 {
		t.Fatal("store mutated by non-operator")
	}
	if len(f.ad.answers) == 0 || !strings.Contains(f.ad.answers[0], "нет доступа") {
		t.Fatalf("callback denial missing: %v", f.ad.answers)
	}
	found := false
	for _, s := range f.ad.sent {
		if strings.Contains(s, "нет доступа") {
			found = true
		}
	}
	if !found {
		t.Fatalf("message denial missing: %v", f.ad.sent)
	}
}

func TestDeleteFlowConfirmed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_ = f.store.Put("2024-12-19", events.Event{Title: "t", Description: "d"})

	handle(t, f, callbackFrom(operatorID, actDelete, ""))
	if !strings.Contains(f.ad.lastSent(t), "Выберите событие") {
		t.Fatalf("expected picker, got %q", f.ad.lastSent(t))
	}

	handle(t, f, callbackFrom(operatorID, actDeletePick, "2024-12-19"))
	if !strings.Contains(f.ad.lastSent(t), "Удалить событие?") {
		t.Fatalf("expected confirmation, got %q", f.ad.lastSent(t))
	}
	if f.store.Len() != 1 {
		t.Fatal("confirmation alone must not delete")
	}

	handle(t, f, callbackFrom(operatorID, actDeleteConfirm, "2024-12-19"))
	if f.store.Len() != 0 {
		t.Fatal("event not deleted after confirmation")
	}
	if !strings.Contains(f.ad.lastSent(t), "удалено") {
		t.Fatalf("missing deletion report, got %q", f.ad.lastSent(t))
	}
}

func TestDeleteAbsentDateReportsNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_ = f.store.Put("2024-12-19", events.Event{Title: "t", Description: "d"})

	handle(t, f, callbackFrom(operatorID, actDeleteConfirm, "2024-12-25"))
	if !strings.Contains(f.ad.lastSent(t), "не найдено") {
		t.Fatalf("expected not-found report, got %q", f.ad.lastSent(t))
	}
	if f.store.Len() != 1 {
		t.Fatal("store must stay unchanged")
	}
}

func TestDeleteCancelReturnsToMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	_ = f.store.Put("2024-12-19", events.Event{Title: "t", Description: "d"})

	handle(t, f, callbackFrom(operatorID, actDeletePick, "2024-12-19"))
	handle(t, f, callbackFrom(operatorID, actMenu, ""))

	if f.store.Len() != 1 {
		t.Fatal("cancel must not mutate the store")
	}
	if !strings.Contains(f.ad.lastSent(t), "Админ-панель") {
		t.Fatalf("expected menu, got %q", f.ad.lastSent(t))
	}
}

func TestTestBroadcastFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dir.subs = []storage.Subscriber{{ID: 1}, {ID: 2}, {ID: 3}}
	f.bc.report = broadcast.Report{Sent: 2, Failed: 1}

	handle(t, f, callbackFrom(operatorID, actTest, ""))
	handle(t, f, msgFrom(operatorID, "Всем привет!"))

	if f.bc.gotText != "Всем привет!" {
		t.Fatalf("broadcast text = %q", f.bc.gotText)
	}
	if len(f.bc.gotTargets) != 3 {
		t.Fatalf("targets = %v, want 3", f.bc.gotTargets)
	}
	last := f.ad.lastSent(t)
	if !strings.Contains(last, "Отправлено: 2") || !strings.Contains(last, "Ошибок: 1") {
		t.Fatalf("report message = %q", last)
	}
	if _, active := f.h.sessions.get(operatorID); active {
		t.Fatal("session must end after broadcast")
	}
}

func TestStartingNewFlowReplacesSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	handle(t, f, callbackFrom(operatorID, actAdd, ""))
	handle(t, f, msgFrom(operatorID, "2024-12-19"))
	handle(t, f, callbackFrom(operatorID, actTest, ""))

	sess, ok := f.h.sessions.get(operatorID)
	if !ok || sess.step != StepTestMessage {
		t.Fatal("new flow must replace the stale session")
	}
	if sess.date != "" {
		t.Fatal("replaced session must start clean")
	}
}
