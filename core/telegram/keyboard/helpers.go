// Package keyboard builds telebot reply markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// Button is one inline button. Unique is the callback key and Data its payload.
type Button struct {
	Text   string
	Unique string
	Data   string
}

// Remove hides the reply keyboard.
func Remove() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// Reply builds a resized reply keyboard with one row per slice. Empty rows
// are skipped.
func Reply(rows ...[]string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	out := make([]tele.Row, 0, len(rows))
	for _, labels := range rows {
		if len(labels) == 0 {
			continue
		}
		row := make(tele.Row, len(labels))
		for i, label := range labels {
			row[i] = m.Text(label)
		}
		out = append(out, row)
	}
	m.Reply(out...)
	return m
}

// Inline builds an inline keyboard with one row per slice.
func Inline(rows ...[]Button) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	out := make([]tele.Row, 0, len(rows))
	for _, buttons := range rows {
		row := make(tele.Row, len(buttons))
		for i, b := range buttons {
			row[i] = m.Data(b.Text, b.Unique, b.Data)
		}
		out = append(out, row)
	}
	m.Inline(out...)
	return m
}
