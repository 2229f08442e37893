package tgui

import (
	"fmt"
	"time"

	tele "gopkg.in/telebot.v4"
)

// Calendar keyboards are used by scheduling flows: the operator first picks a
// day from a month grid, then a time slot. Callback data uses the standard
// "scope:action:payload" format:
//
//	scope:calday:2026-09-14   day picked
//	scope:calnav:2026-10      switch the grid to another month
//	scope:calnop              decorative cell, ignore
//	scope:time:18:30          time slot picked
const (
	ActionCalendarDay = "calday"
	ActionCalendarNav = "calnav"
	ActionCalendarNop = "calnop"
	ActionTimeSlot    = "time"

	calendarDateLayout  = "2006-01-02"
	calendarMonthLayout = "2006-01"
)

var weekdayHeader = []string{"Երկ", "Երք", "Չրք", "Հնգ", "Ուրբ", "Շբթ", "Կիր"}

// Calendar builds a month-grid keyboard for the given year/month.
// Days before today (in loc) are rendered as inert cells so past dates cannot
// be picked.
func Calendar(scope string, year int, month time.Month, loc *time.Location) *tele.ReplyMarkup {
	if loc == nil {
		loc = time.Local
	}
	today := time.Now().In(loc)
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)

	kb := NewInline()

	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)
	kb.Row(
		Btn("«", Data(scope, ActionCalendarNav, prev.Format(calendarMonthLayout))),
		Btn(first.Format("Jan 2006"), Data(scope, ActionCalendarNop, "")),
		Btn("»", Data(scope, ActionCalendarNav, next.Format(calendarMonthLayout))),
	)

	hdr := make([]tele.Btn, 0, len(weekdayHeader))
	for _, w := range weekdayHeader {
		hdr = append(hdr, Btn(w, Data(scope, ActionCalendarNop, "")))
	}
	kb.Row(hdr...)

	// Monday-first offset of the 1st.
	offset := (int(first.Weekday()) + 6) % 7
	daysIn := first.AddDate(0, 1, -1).Day()

	row := make([]tele.Btn, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, Btn(" ", Data(scope, ActionCalendarNop, "")))
	}
	for day := 1; day <= daysIn; day++ {
		d := time.Date(year, month, day, 0, 0, 0, 0, loc)
		if beforeDay(d, today) {
			row = append(row, Btn("·", Data(scope, ActionCalendarNop, "")))
		} else {
			row = append(row, Btn(fmt.Sprintf("%d", day), Data(scope, ActionCalendarDay, d.Format(calendarDateLayout))))
		}
		if len(row) == 7 {
			kb.Row(row...)
			// telebot keeps the variadic slice; never reuse its backing array.
			row = make([]tele.Btn, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, Btn(" ", Data(scope, ActionCalendarNop, "")))
		}
		kb.Row(row...)
	}
	return kb.Markup()
}

// ParseCalendarDay parses the payload of an ActionCalendarDay callback.
func ParseCalendarDay(payload string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(calendarDateLayout, payload, loc)
}

// ParseCalendarMonth parses the payload of an ActionCalendarNav callback.
func ParseCalendarMonth(payload string, loc *time.Location) (int, time.Month, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(calendarMonthLayout, payload, loc)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}

// TimeSlots builds a keyboard of HH:MM buttons, four per row.
func TimeSlots(scope string, slots []string) *tele.ReplyMarkup {
	kb := NewInline()
	row := make([]tele.Btn, 0, 4)
	for _, s := range slots {
		row = append(row, Btn(s, Data(scope, ActionTimeSlot, s)))
		if len(row) == 4 {
			kb.Row(row...)
			row = make([]tele.Btn, 0, 4)
		}
	}
	if len(row) > 0 {
		kb.Row(row...)
	}
	return kb.Markup()
}

// DefaultTimeSlots covers common posting hours at 30-minute steps.
func DefaultTimeSlots() []string {
	out := make([]string, 0, 28)
	for h := 9; h <= 22; h++ {
		out = append(out, fmt.Sprintf("%02d:00", h), fmt.Sprintf("%02d:30", h))
	}
	return out
}

func beforeDay(d, now time.Time) bool {
	y1, m1, d1 := d.Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 {
		return y1 < y2
	}
	if m1 != m2 {
		return m1 < m2
	}
	return d1 < d2
}
