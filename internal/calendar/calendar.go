// Package calendar renders scheduled prompts as an iCalendar feed.
package calendar

import (
	"bytes"
	"fmt"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/store"
	"github.com/emersion/go-ical"
	"go.uber.org/zap"
)

const (
	Version  = "2.0"
	ProdID   = "-//coolftc//Prompt//EN"
	CalName  = "Prompts"
	UIDHost  = "prompt.coolftc"
	Duration = 15 * time.Minute
)

// Empty is returned when nothing is upcoming; some clients reject a
// VCALENDAR without children.
const Empty = "BEGIN:VCALENDAR\r\nVERSION:" + Version + "\r\nPRODID:" + ProdID + "\r\nEND:VCALENDAR\r\n"

// Export writes one VEVENT per upcoming prompt. Recurring prompts carry an
// RRULE and stay in the feed until their end date passes. Prompts with an
// unreadable target time or recurrence are left out. logger may be nil.
func Export(prompts []store.Prompt, now time.Time, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, Version)
	cal.Props.SetText(ical.PropProductID, ProdID)
	cal.Props.SetText("X-WR-CALNAME", CalName)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")

	for i := range prompts {
		ev, err := event(&prompts[i], now)
		if err != nil {
			logger.Warn("prompt left out of calendar", zap.Int64("prompt_id", prompts[i].ID), zap.Error(err))
			continue
		}
		if ev != nil {
			cal.Children = append(cal.Children, ev.Component)
		}
	}

	if len(cal.Children) == 0 {
		return []byte(Empty), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func event(p *store.Prompt, now time.Time) (*ical.Event, error) {
	start, err := ktime.Parse(p.TargetTime, ktime.Template3339fk, ktime.UTC)
	if err != nil {
		return nil, nil
	}
	rule := p.Rule()
	if !upcoming(p, start, now) {
		return nil, nil
	}

	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, uid(p))
	ev.Props.SetText(ical.PropSummary, summary(p))
	if p.Message != "" {
		ev.Props.SetText(ical.PropDescription, p.Message)
	}
	ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ev.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(Duration).UTC())

	if rule.Recurs() {
		rr, err := rule.RRule(start, now)
		if err != nil {
			return nil, fmt.Errorf("recurrence: %w", err)
		}
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = rr
		ev.Props.Set(prop)
	}

	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	alarm.Props.SetText(ical.PropDescription, summary(p))
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.Value = "PT0M"
	alarm.Props.Set(trigger)
	ev.Children = append(ev.Children, alarm)

	return ev, nil
}

func upcoming(p *store.Prompt, start, now time.Time) bool {
	if !p.Recurs() {
		return !start.Before(now)
	}
	if p.RecurEnd == "" {
		return true
	}
	end, err := ktime.Parse(p.RecurEnd, ktime.Template3339fk, ktime.UTC)
	if err != nil {
		return true
	}
	return !end.Before(now)
}

func uid(p *store.Prompt) string {
	if p.ServerID > 0 {
		return fmt.Sprintf("note-%d@%s", p.ServerID, UIDHost)
	}
	return fmt.Sprintf("local-%d@%s", p.ID, UIDHost)
}

func summary(p *store.Prompt) string {
	name := p.TargetName
	if name == "" {
		name = p.TargetUnique
	}
	if name == "" {
		return "Prompt"
	}
	return "Prompt for " + name
}
