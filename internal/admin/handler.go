package admin

import (
	"context"
	"fmt"
	"strings"

	"adventbot/internal/broadcast"
	"adventbot/internal/events"
	"adventbot/internal/security"
	"adventbot/internal/storage"
	kit "adventbot/internal/transport"
	"adventbot/pkg/logx"
	"adventbot/pkg/tgui"
)

// Broadcaster fans one message out to many chats. Satisfied by
// *broadcast.Service; narrowed here so tests can fake it.
type Broadcaster interface {
	Run(ctx context.Context, name string, targets []kit.ChatTarget, text string, opt *kit.SendOptions) broadcast.Report
}

// SubscriberDirectory is the read side of the subscriber registry.
type SubscriberDirectory interface {
	List(ctx context.Context) ([]storage.Subscriber, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// Handler drives the operator panel: the event authoring wizard, the deletion
// flow, subscriber listing, and the test broadcast. Every inbound update
// passes the access guard before any wizard logic runs.
type Handler struct {
	adapter     kit.Adapter // admin bot: prompts and reports
	guard       *security.Guard
	events      *events.Store
	subscribers SubscriberDirectory
	broadcaster Broadcaster
	sessions    *sessions
	log         logx.Logger
}

func NewHandler(
	adapter kit.Adapter,
	guard *security.Guard,
	store *events.Store,
	subscribers SubscriberDirectory,
	broadcaster Broadcaster,
	log logx.Logger,
) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		adapter:     adapter,
		guard:       guard,
		events:      store,
		subscribers: subscribers,
		broadcaster: broadcaster,
		sessions:    newSessions(),
		log:         log,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, up kit.Update) error {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return nil
		}
		return h.onMessage(ctx, up.Message)
	case kit.UpdatePhoto:
		if up.Message == nil {
			return nil
		}
		return h.onPhoto(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return nil
		}
		return h.onCallback(ctx, up.Callback)
	default:
		return nil
	}
}

func (h *Handler) onMessage(ctx context.Context, m *kit.Message) error {
	p := security.Principal{ID: m.FromID, Username: m.FromUsername, FirstName: m.FromFirstName}
	to := kit.ChatTarget{ChatID: m.ChatID}

	if ok, reason := h.guard.CheckAccess(p); !ok {
		_, err := h.adapter.SendText(ctx, to, "❌ "+reason, nil)
		return err
	}

	if strings.HasPrefix(strings.TrimSpace(m.Text), "/start") {
		return h.sendPanel(ctx, to)
	}
	return h.continueWizard(ctx, m)
}

func (h *Handler) onPhoto(ctx context.Context, m *kit.Message) error {
	p := security.Principal{ID: m.FromID, Username: m.FromUsername, FirstName: m.FromFirstName}
	to := kit.ChatTarget{ChatID: m.ChatID}

	if ok, reason := h.guard.CheckAccess(p); !ok {
		_, err := h.adapter.SendText(ctx, to, "❌ "+reason, nil)
		return err
	}

	sess, ok := h.sessions.get(m.FromID)
	if !ok || sess.step != StepImage {
		return nil
	}
	url, err := h.adapter.FileURL(ctx, m.PhotoID)
	if err != nil {
		h.log.Error("photo file resolve failed", logx.Int64("user_id", m.FromID), logx.Err(err))
		_, serr := h.adapter.SendText(ctx, to, "❌ Не удалось сохранить картинку, попробуйте ещё раз или отправьте /skip.", nil)
		return serr
	}
	sess.image = url
	sess.step = StepMap
	_, err = h.adapter.SendText(ctx, to, "✅ Картинка сохранена!\n\nОтправьте ссылку на карту (или отправьте /skip чтобы пропустить):", nil)
	return err
}

func (h *Handler) onCallback(ctx context.Context, cb *kit.Callback) error {
	p := security.Principal{ID: cb.FromID, Username: cb.FromUsername}
	to := kit.ChatTarget{ChatID: cb.ChatID}

	if ok, reason := h.guard.CheckAccess(p); !ok {
		return h.adapter.AnswerCallback(ctx, cb.ID, "❌ "+reason)
	}
	_ = h.adapter.AnswerCallback(ctx, cb.ID, "")

	ns, act, payload := tgui.ParseData(cb.Data)
	if ns != callbackNS {
		return nil
	}

	switch action(act) {
	case actMenu:
		return h.sendPanel(ctx, to)
	case actSubscribers:
		return h.sendSubscribers(ctx, to)
	case actEvents:
		return h.sendEventList(ctx, to)
	case actAdd:
		return h.startAdd(ctx, cb.FromID, to)
	case actDelete:
		return h.startDelete(ctx, to)
	case actDeletePick:
		return h.confirmDelete(ctx, to, payload)
	case actDeleteConfirm:
		return h.deleteEvent(ctx, to, payload)
	case actTest:
		return h.startTestBroadcast(ctx, cb.FromID, to)
	default:
		h.log.Debug("unknown admin callback", logx.String("data", cb.Data))
		return nil
	}
}

// ---- panel & listings ----

func (h *Handler) sendPanel(ctx context.Context, to kit.ChatTarget) error {
	kb := tgui.NewInline().
		Row(tgui.Btn("👥 Подписчики", tgui.Data(callbackNS, string(actSubscribers), ""))).
		Row(tgui.Btn("📅 Все события", tgui.Data(callbackNS, string(actEvents), ""))).
		Row(tgui.Btn("➕ Добавить событие", tgui.Data(callbackNS, string(actAdd), ""))).
		Row(tgui.Btn("🗑️ Удалить событие", tgui.Data(callbackNS, string(actDelete), ""))).
		Row(tgui.Btn("📤 Тестовая рассылка", tgui.Data(callbackNS, string(actTest), "")))

	opt := &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: kb.Markup()}
	_, err := h.adapter.SendText(ctx, to, "🔐 Админ-панель\n\nВыберите действие:", opt)
	return err
}

const subscriberListLimit = 50

func (h *Handler) sendSubscribers(ctx context.Context, to kit.ChatTarget) error {
	subs, err := h.subscribers.List(ctx)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		_, err := h.adapter.SendText(ctx, to, "📭 Пока нет подписчиков.", nil)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "👥 Подписчики: %d\n\n", len(subs))
	shown := subs
	if len(shown) > subscriberListLimit {
		shown = shown[:subscriberListLimit]
	}
	for _, s := range shown {
		name := "Без username"
		if s.Username != "" {
			name = "@" + s.Username
		}
		fmt.Fprintf(&b, "• %s (ID: %d)\n", name, s.ID)
		if !s.SubscribedAt.IsZero() {
			fmt.Fprintf(&b, "  Подписался: %s\n", s.SubscribedAt.Format("2006-01-02 15:04"))
		}
		b.WriteString("\n")
	}
	if rest := len(subs) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "... и еще %d подписчиков", rest)
	}
	_, err = h.adapter.SendText(ctx, to, b.String(), nil)
	return err
}

func (h *Handler) sendEventList(ctx context.Context, to kit.ChatTarget) error {
	dates := h.events.Dates()
	if len(dates) == 0 {
		_, err := h.adapter.SendText(ctx, to, "📅 Событий пока нет.", nil)
		return err
	}
	var b strings.Builder
	b.WriteString("📅 Все события:\n\n")
	for _, d := range dates {
		ev, _ := h.events.Get(d)
		fmt.Fprintf(&b, "📆 %s\n   %s\n", d, ev.Title)
		if ev.Image != "" {
			b.WriteString("   🖼️ Есть картинка\n")
		}
		if ev.MapURL != "" {
			b.WriteString("   🗺️ Есть карта\n")
		}
		b.WriteString("\n")
	}
	_, err := h.adapter.SendText(ctx, to, b.String(), nil)
	return err
}

// ---- add-event flow ----

func (h *Handler) startAdd(ctx context.Context, operator int64, to kit.ChatTarget) error {
	h.sessions.begin(operator, StepDate)
	_, err := h.adapter.SendText(ctx, to,
		"➕ Добавление события\n\nОтправьте дату в формате: YYYY-MM-DD\nНапример: 2024-12-19", nil)
	return err
}

func (h *Handler) continueWizard(ctx context.Context, m *kit.Message) error {
	sess, ok := h.sessions.get(m.FromID)
	if !ok {
		// Free text without an active session is a no-op.
		return nil
	}
	to := kit.ChatTarget{ChatID: m.ChatID}
	text := security.Sanitize(m.Text, 0)

	switch sess.step {
	case StepDate:
		if !security.ValidateDate(text) {
			_, err := h.adapter.SendText(ctx, to,
				"❌ Неверный формат даты!\nИспользуйте формат: YYYY-MM-DD\nНапример: 2024-12-19", nil)
			return err
		}
		sess.date = text
		sess.step = StepTitle
		_, err := h.adapter.SendText(ctx, to,
			fmt.Sprintf("✅ Дата: %s\n\nОтправьте заголовок события:", text), nil)
		return err

	case StepTitle:
		sess.title = text
		sess.step = StepDescription
		_, err := h.adapter.SendText(ctx, to,
			fmt.Sprintf("✅ Заголовок: %s\n\nОтправьте описание события:", text), nil)
		return err

	case StepDescription:
		sess.description = text
		sess.step = StepImage
		_, err := h.adapter.SendText(ctx, to,
			fmt.Sprintf("✅ Описание: %s\n\nОтправьте ссылку на картинку (или отправьте /skip чтобы пропустить):", text), nil)
		return err

	case StepImage:
		if !strings.EqualFold(text, SkipSentinel) {
			if !security.ValidateURL(text) {
				_, err := h.adapter.SendText(ctx, to,
					"❌ Ссылка должна начинаться с http:// или https:// (или отправьте /skip):", nil)
				return err
			}
			sess.image = text
		}
		sess.step = StepMap
		_, err := h.adapter.SendText(ctx, to,
			"Отправьте ссылку на карту (или отправьте /skip чтобы пропустить):", nil)
		return err

	case StepMap:
		if !strings.EqualFold(text, SkipSentinel) {
			if !security.ValidateURL(text) {
				_, err := h.adapter.SendText(ctx, to,
					"❌ Ссылка должна начинаться с http:// или https:// (или отправьте /skip):", nil)
				return err
			}
			sess.mapURL = text
		}
		return h.commitEvent(ctx, m.FromID, to, sess)

	case StepTestMessage:
		return h.runTestBroadcast(ctx, m.FromID, to, text)

	default:
		return nil
	}
}

func (h *Handler) commitEvent(ctx context.Context, operator int64, to kit.ChatTarget, sess *session) error {
	ev := events.Event{
		Title:       sess.title,
		Description: sess.description,
		Image:       sess.image,
		MapURL:      sess.mapURL,
	}
	if err := h.events.Put(sess.date, ev); err != nil {
		h.log.Error("event save failed", logx.String("date", sess.date), logx.Err(err))
		_, serr := h.adapter.SendText(ctx, to, "❌ Не удалось сохранить событие.", nil)
		if serr != nil {
			return serr
		}
		return err
	}
	h.sessions.clear(operator)
	h.log.Info("event saved", logx.Int64("operator", operator), logx.String("date", sess.date))

	yesNo := func(v string) string {
		if v != "" {
			return "Да"
		}
		return "Нет"
	}
	_, err := h.adapter.SendText(ctx, to, fmt.Sprintf(
		"✅ Событие добавлено!\n\n📆 Дата: %s\n📝 Заголовок: %s\n📄 Описание: %s\n🖼️ Картинка: %s\n🗺️ Карта: %s",
		sess.date, sess.title, sess.description, yesNo(sess.image), yesNo(sess.mapURL)), nil)
	return err
}

// ---- delete flow ----

func (h *Handler) startDelete(ctx context.Context, to kit.ChatTarget) error {
	dates := h.events.Dates()
	if len(dates) == 0 {
		_, err := h.adapter.SendText(ctx, to, "📅 Событий для удаления нет.", nil)
		return err
	}
	kb := tgui.NewInline()
	for _, d := range dates {
		ev, _ := h.events.Get(d)
		label := d + ": " + tgui.TruncRunes(ev.Title, 30)
		kb.Row(tgui.Btn(label, tgui.Data(callbackNS, string(actDeletePick), d)))
	}
	kb.Row(tgui.Btn("◀️ Назад", tgui.Data(callbackNS, string(actMenu), "")))

	opt := &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: kb.Markup()}
	_, err := h.adapter.SendText(ctx, to, "🗑️ Выберите событие для удаления:", opt)
	return err
}

func (h *Handler) confirmDelete(ctx context.Context, to kit.ChatTarget, date string) error {
	ev, ok := h.events.Get(date)
	if !ok {
		_, err := h.adapter.SendText(ctx, to, "❌ Событие не найдено.", nil)
		return err
	}
	kb := tgui.ConfirmInline(
		tgui.Btn("✅ Да, удалить", tgui.Data(callbackNS, string(actDeleteConfirm), date)),
		tgui.Btn("❌ Отмена", tgui.Data(callbackNS, string(actMenu), "")),
	)
	opt := &kit.SendOptions{DisablePreview: true, ReplyMarkupAdapter: kb.Markup()}
	_, err := h.adapter.SendText(ctx, to, fmt.Sprintf(
		"🗑️ Удалить событие?\n\n📆 %s\n📝 %s\n\nЭто действие нельзя отменить!", date, ev.Title), opt)
	return err
}

func (h *Handler) deleteEvent(ctx context.Context, to kit.ChatTarget, date string) error {
	removed, err := h.events.Delete(date)
	if err != nil {
		h.log.Error("event delete failed", logx.String("date", date), logx.Err(err))
		_, serr := h.adapter.SendText(ctx, to, "❌ Не удалось удалить событие.", nil)
		if serr != nil {
			return serr
		}
		return err
	}
	if !removed {
		_, err := h.adapter.SendText(ctx, to, "❌ Событие не найдено.", nil)
		return err
	}
	h.log.Info("event deleted", logx.String("date", date))
	_, err = h.adapter.SendText(ctx, to, fmt.Sprintf("✅ Событие %s удалено.", date), nil)
	return err
}

// ---- test broadcast ----

func (h *Handler) startTestBroadcast(ctx context.Context, operator int64, to kit.ChatTarget) error {
	h.sessions.begin(operator, StepTestMessage)
	_, err := h.adapter.SendText(ctx, to,
		"📤 Тестовая рассылка\n\nЭта функция отправит сообщение всем подписчикам.\nВведите текст сообщения:", nil)
	return err
}

func (h *Handler) runTestBroadcast(ctx context.Context, operator int64, to kit.ChatTarget, text string) error {
	ids, err := h.subscribers.ListIDs(ctx)
	if err != nil {
		return err
	}
	targets := make([]kit.ChatTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, kit.ChatTarget{ChatID: id})
	}

	_, _ = h.adapter.SendText(ctx, to,
		fmt.Sprintf("📤 Начинаю рассылку %d подписчикам...", len(targets)), nil)

	rep := h.broadcaster.Run(ctx, "test_send", targets, text, nil)
	h.sessions.clear(operator)

	_, err = h.adapter.SendText(ctx, to, fmt.Sprintf(
		"✅ Рассылка завершена!\n\n📤 Отправлено: %d\n❌ Ошибок: %d", rep.Sent, rep.Failed), nil)
	return err
}
