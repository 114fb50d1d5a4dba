// Package tgui provides small Telegram UI helpers: HTML-safe text building,
// inline keyboards, and callback-data packing.
package tgui
