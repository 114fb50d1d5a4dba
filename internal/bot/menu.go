package bot

import (
	kit "adventbot/internal/transport"
	"adventbot/pkg/tgui"
)

func menuKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("📅 Сегодняшние события", tgui.Data(callbackNS, string(actToday), ""))).
		Row(tgui.Btn("📋 Открыть все события", tgui.Data(callbackNS, string(actAll), ""))).
		Row(tgui.Btn("ℹ️ О краеведении", tgui.Data(callbackNS, string(actInfo), "")))
}

// tguiMenu wraps plain text with the subscriber menu keyboard.
// Plain parse mode: the welcome text is not HTML.
func tguiMenu(text string) tgui.Message {
	return tgui.Message{
		Text: text,
		Opt: &kit.SendOptions{
			DisablePreview:     true,
			ReplyMarkupAdapter: menuKeyboard().Markup(),
		},
	}
}

func parseCallback(data string) (ns, action, payload string) {
	return tgui.ParseData(data)
}
