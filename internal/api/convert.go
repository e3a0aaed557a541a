package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coolftc/prompt/internal/ktime"
	"github.com/coolftc/prompt/internal/outbox"
	"github.com/coolftc/prompt/internal/push"
	"github.com/coolftc/prompt/internal/recur"
	"github.com/coolftc/prompt/internal/store"
	intsync "github.com/coolftc/prompt/internal/sync"
	"google.golang.org/protobuf/types/known/structpb"
)

func friendFields(a store.Account) map[string]any {
	return map[string]any{
		"local_id":    a.LocalID,
		"acct_id":     a.AcctID,
		"unique":      a.Unique,
		"display":     a.Display,
		"name":        a.BestName(),
		"timezone":    a.Timezone,
		"sleep_cycle": a.SleepCycle,
		"contact_id":  a.ContactID,
		"mirror":      a.Mirror,
		"pending":     a.Pending,
		"confirmed":   a.Confirmed,
		"category":    category(a),
	}
}

func category(a store.Account) string {
	switch {
	case a.Confirmed:
		return intsync.CategoryFriend.String()
	case a.Pending:
		return intsync.CategoryRSVP.String()
	default:
		return intsync.CategoryInvite.String()
	}
}

func promptFields(p store.Prompt, now time.Time) map[string]any {
	local, err := ktime.Convert(p.TargetTime, ktime.Template3339fk, ktime.TemplateDisplay, p.Timezone)
	if err != nil {
		local = p.TargetTime
	}
	return map[string]any{
		"id":          p.ID,
		"server_id":   p.ServerID,
		"snooze_id":   p.SnoozeID,
		"target_acct": p.TargetAcct,
		"target":      p.TargetName,
		"from":        p.FromName,
		"target_time": p.TargetTime,
		"local_time":  local,
		"timezone":    p.Timezone,
		"recurrence":  p.Rule().Describe(now),
		"message":     p.Message,
		"status":      p.Status,
		"processed":   p.Processed,
	}
}

func resultFields(r intsync.Result) map[string]any {
	return map[string]any{
		"debounced":  r.Debounced,
		"deleted":    r.Deleted,
		"updated":    r.Updated,
		"added":      r.Added,
		"enriched":   r.Enriched,
		"skipped":    r.Skipped,
		"failed":     r.Failed,
		"pending":    r.Pending,
		"elapsed_ms": r.Elapsed.Milliseconds(),
	}
}

func notificationFields(n push.Notification) map[string]any {
	out := map[string]any{"kind": string(n.Kind())}
	switch v := n.(type) {
	case push.Note:
		out["server_id"] = v.ServerID
		out["from"] = v.From.BestName()
		out["time"] = v.Time
		out["message"] = v.Message
		out["recurs"] = v.RecurUnit != recur.Invalid
	case push.Invite:
		out["server_id"] = v.ServerID
		out["from"] = v.From.BestName()
		out["mirror"] = v.From.Mirror
		out["message"] = v.Message
	case push.Friend:
		out["server_id"] = v.ServerID
		out["from"] = v.From.BestName()
		out["message"] = v.Message
	}
	return out
}

func list[T any](items []T, fields func(T) map[string]any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, fields(it))
	}
	return out
}

func str(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		if sv, ok := v.GetKind().(*structpb.Value_StringValue); ok {
			return sv.StringValue
		}
		if nv, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
			return strconv.FormatFloat(nv.NumberValue, 'f', -1, 64)
		}
	}
	return ""
}

func num(s *structpb.Struct, key string) int64 {
	if v, ok := s.GetFields()[key]; ok {
		return int64(v.GetNumberValue())
	}
	return 0
}

// draftFrom reads a SendPrompt request.
//
//	{target, when, time_name, time_adj, message,
//	 recurrence: {unit, period, days, end, count, end_date}}
func draftFrom(s *structpb.Struct) (outbox.Draft, error) {
	d := outbox.Draft{
		TargetAcct: num(s, "target"),
		When:       str(s, "when"),
		TimeName:   int(num(s, "time_name")),
		TimeAdj:    int(num(s, "time_adj")),
		Message:    str(s, "message"),
	}
	rv, ok := s.GetFields()["recurrence"]
	if !ok || rv.GetStructValue() == nil {
		return d, nil
	}
	rs := rv.GetStructValue()

	unit, err := parseUnit(str(rs, "unit"))
	if err != nil {
		return d, err
	}
	if unit == recur.Invalid {
		return d, nil
	}
	end, err := parseEnd(str(rs, "end"))
	if err != nil {
		return d, err
	}
	rd := recur.Draft{
		Unit:    unit,
		Period:  str(rs, "period"),
		End:     end,
		Count:   str(rs, "count"),
		EndDate: str(rs, "end_date"),
	}
	for _, v := range rs.GetFields()["days"].GetListValue().GetValues() {
		day, err := parseWeekday(v.GetStringValue())
		if err != nil {
			return d, err
		}
		rd.Days = append(rd.Days, day)
	}
	d.Recurrence = &rd
	return d, nil
}

func parseUnit(s string) (recur.Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return recur.Invalid, nil
	case "day", "daily":
		return recur.UnitDay, nil
	case "month", "monthly":
		return recur.UnitMonth, nil
	case "weekday", "weekly", "week":
		return recur.UnitWeekday, nil
	}
	return recur.Invalid, fmt.Errorf("%w: %q", recur.ErrUnknownUnit, s)
}

func parseEnd(s string) (recur.EndMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "after", "count":
		return recur.EndAfter, nil
	case "date", "on":
		return recur.EndOnDate, nil
	case "forever", "never":
		return recur.EndForever, nil
	}
	return recur.EndAfter, fmt.Errorf("%w: end %q", recur.ErrProblemEndDate, s)
}

func parseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("%w: %q", recur.ErrProblemDayWeek, s)
}
