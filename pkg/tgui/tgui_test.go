package tgui

import (
	"strings"
	"testing"
)

func TestCallbackDataRoundTrip(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ns, action, payload string
	}{
		{"adm", "menu", ""},
		{"adm", "delok", "2024-12-19"},
		{"sub", "today", ""},
	}
	for _, tc := range cases {
		d := Data(tc.ns, tc.action, tc.payload)
		ns, act, payload := ParseData(d)
		if ns != tc.ns || act != tc.action || payload != tc.payload {
			t.Errorf("round trip %q = (%q, %q, %q)", d, ns, act, payload)
		}
	}
}

func TestCallbackDataClampsToLimit(t *testing.T) {
	t.Parallel()
	d := Data("ns", "act", strings.Repeat("x", 200))
	if len(d) > MaxCallbackDataLen {
		t.Fatalf("len = %d, want <= %d", len(d), MaxCallbackDataLen)
	}
}

func TestParseDataDegenerateInputs(t *testing.T) {
	t.Parallel()
	ns, act, payload := ParseData("justns")
	if ns != "justns" || act != "" || payload != "" {
		t.Fatalf("got (%q, %q, %q)", ns, act, payload)
	}
	// Payloads may themselves contain colons; only the first two split.
	ns, act, payload = ParseData("a:b:c:d")
	if ns != "a" || act != "b" || payload != "c:d" {
		t.Fatalf("got (%q, %q, %q)", ns, act, payload)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello!", 5, "hello…"},
		{"Ёлка на площади", 4, "Ёлка…"},
		{"", 3, ""},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Errorf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestInlineKeyboardLayout(t *testing.T) {
	t.Parallel()
	kb := NewInline().
		Row(Btn("a", "ns:a"), Btn("b", "ns:b")).
		Row(URLBtn("site", "https://example.com"))

	mk := kb.Markup()
	if len(mk.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(mk.InlineKeyboard))
	}
	if len(mk.InlineKeyboard[0]) != 2 || len(mk.InlineKeyboard[1]) != 1 {
		t.Fatalf("row widths = %d/%d", len(mk.InlineKeyboard[0]), len(mk.InlineKeyboard[1]))
	}
	if mk.InlineKeyboard[0][0].Data != "ns:a" {
		t.Fatalf("Data = %q", mk.InlineKeyboard[0][0].Data)
	}
	if mk.InlineKeyboard[1][0].URL != "https://example.com" {
		t.Fatalf("URL = %q", mk.InlineKeyboard[1][0].URL)
	}
}
