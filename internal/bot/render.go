package bot

import (
	"adventbot/internal/events"
	"adventbot/pkg/tgui"
)

// EventMessage renders one day's content as sent to subscribers.
func EventMessage(date string, ev events.Event) tgui.Message {
	b := tgui.New().
		Title("📆", date).
		RawLine(tgui.B(ev.Title).String()).
		Blank().
		Line(ev.Description)
	if ev.Image != "" {
		b.Blank().RawLine("🖼️ " + tgui.Link("Картинка", ev.Image).String())
	}
	if ev.MapURL != "" {
		b.RawLine("🗺️ " + tgui.Link("Карта", ev.MapURL).String())
	}
	// Previews stay on so the image link unfurls.
	return b.DisablePreview(false).Build()
}

// NoEventMessage is the daily fallback when the store has nothing for today.
func NoEventMessage() tgui.Message {
	return tgui.New().
		Line("На сегодня событий нет. Загляни завтра!").
		Build()
}
