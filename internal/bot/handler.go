package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"adventbot/internal/events"
	"adventbot/internal/security"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/pkg/logx"
)

// Callback namespace and actions for the subscriber menu. Dispatch is a
// single exhaustive switch over these constants.
const callbackNS = "sub"

type action string

const (
	actToday action = "today"
	actAll   action = "all"
	actInfo  action = "info"
)

const aboutText = "ℹ️ О краеведении:\n\n" +
	"kraygid.ru — готовые планы путешествий по России: интересные места, " +
	"локальные открытия, кафе и рестораны, актуальные афиши городов. " +
	"Маршруты по Петербургу, Кавказу, Дальнему Востоку и другим регионам."

// Handler drives the subscriber-facing bot: /start registers the sender and
// shows the menu; menu callbacks render store content.
type Handler struct {
	adapter  kit.Adapter
	registry *storage.Registry
	events   *events.Store
	log      logx.Logger
	now      func() time.Time
}

func NewHandler(adapter kit.Adapter, registry *storage.Registry, store *events.Store, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{adapter: adapter, registry: registry, events: store, log: log, now: time.Now}
}

func (h *Handler) HandleUpdate(ctx context.Context, up kit.Update) error {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return nil
		}
		if strings.HasPrefix(strings.TrimSpace(up.Message.Text), "/start") {
			return h.onStart(ctx, up.Message)
		}
		return nil
	case kit.UpdateCallback:
		if up.Callback == nil {
			return nil
		}
		return h.onCallback(ctx, up.Callback)
	default:
		return nil
	}
}

func (h *Handler) onStart(ctx context.Context, m *kit.Message) error {
	p := security.Principal{ID: m.FromID, Username: m.FromUsername, FirstName: m.FromFirstName}
	name := security.Sanitize(p.DisplayName(), 64)

	if err := h.registry.Upsert(ctx, m.FromID, name); err != nil {
		h.log.Error("subscriber upsert failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		return err
	}
	h.log.Info("subscriber registered", logx.Int64("user_id", m.FromID), logx.String("username", name))

	msg := tguiMenu(fmt.Sprintf(
		"Привет, %s! 👋\n\nЯ бот-адвент календарь! Каждый день я буду отправлять тебе новые события и задания.\n\nВыбери действие:",
		name,
	))
	_, err := h.adapter.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID}, msg.Text, msg.Opt)
	return err
}

func (h *Handler) onCallback(ctx context.Context, cb *kit.Callback) error {
	_ = h.adapter.AnswerCallback(ctx, cb.ID, "")

	ns, act, _ := parseCallback(cb.Data)
	if ns != callbackNS {
		return nil
	}
	to := kit.ChatTarget{ChatID: cb.ChatID}

	switch action(act) {
	case actToday:
		return h.sendToday(ctx, to)
	case actAll:
		return h.sendAll(ctx, to)
	case actInfo:
		_, err := h.adapter.SendText(ctx, to, aboutText, nil)
		return err
	default:
		h.log.Debug("unknown callback", logx.String("data", cb.Data))
		return nil
	}
}

func (h *Handler) sendToday(ctx context.Context, to kit.ChatTarget) error {
	date := h.now().Format(events.DateLayout)
	msg := NoEventMessage()
	if ev, ok := h.events.Get(date); ok {
		msg = EventMessage(date, ev)
	}
	_, err := h.adapter.SendText(ctx, to, msg.Text, msg.Opt)
	return err
}

func (h *Handler) sendAll(ctx context.Context, to kit.ChatTarget) error {
	dates := h.events.Dates()
	if len(dates) == 0 {
		_, err := h.adapter.SendText(ctx, to, "📅 Событий пока нет.", nil)
		return err
	}
	var b strings.Builder
	b.WriteString("📅 Все события:\n\n")
	for _, d := range dates {
		ev, _ := h.events.Get(d)
		fmt.Fprintf(&b, "📆 %s — %s\n", d, ev.Title)
	}
	_, err := h.adapter.SendText(ctx, to, b.String(), nil)
	return err
}
