package tgui

import "strings"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
// It covers the full "ns:action:payload" string.
const MaxCallbackDataLen = 64

// Data formats inline callback data as "ns:action:payload", clamped to
// MaxCallbackDataLen bytes. The payload is kept as-is (no escaping); keep it
// short so clamping never applies.
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	d := ns + ":" + action
	if payload != "" {
		d += ":" + payload
	}
	if len(d) > MaxCallbackDataLen {
		d = d[:MaxCallbackDataLen]
	}
	return d
}

// ParseData splits callback data built by Data back into its parts.
// A missing payload yields an empty string.
func ParseData(data string) (ns, action, payload string) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	case 1:
		return parts[0], "", ""
	default:
		return "", "", ""
	}
}
