package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline collects rows of inline buttons.
type Inline struct {
	rows [][]tele.Btn
}

func NewInline() *Inline { return &Inline{} }

// Row adds one row of buttons; an empty call adds nothing.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	if len(btn) > 0 {
		i.rows = append(i.rows, btn)
	}
	return i
}

func (i *Inline) Rows() int { return len(i.rows) }

// Markup renders the keyboard.
func (i *Inline) Markup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, len(i.rows))
	for n, btns := range i.rows {
		rows[n] = rm.Row(btns...)
	}
	rm.Inline(rows...)
	return rm
}

// Btn is a callback button; build data with Data.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

func URLBtn(text, url string) tele.Btn { return tele.Btn{Text: text, URL: url} }

// ReplyKeyboard builds a resized reply keyboard, one label slice per row.
func ReplyKeyboard(rows ...[]string) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{ResizeKeyboard: true}
	var out []tele.Row
	for _, labels := range rows {
		if len(labels) == 0 {
			continue
		}
		row := make(tele.Row, len(labels))
		for n, l := range labels {
			row[n] = rm.Text(l)
		}
		out = append(out, row)
	}
	rm.Reply(out...)
	return rm
}
