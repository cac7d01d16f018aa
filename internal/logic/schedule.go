package logic

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var slotParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Slot is a daily time of day with minute granularity.
type Slot struct {
	Hour   int
	Minute int
}

// ParseSlot parses a strict "HH:MM" literal.
func ParseSlot(s string) (Slot, error) {
	if len(s) != 5 || s[2] != ':' {
		return Slot{}, fmt.Errorf("slot %q: want HH:MM", s)
	}
	h, okH := twoDigits(s[0:2])
	m, okM := twoDigits(s[3:5])
	if !okH || !okM {
		return Slot{}, fmt.Errorf("slot %q: want HH:MM", s)
	}
	if h > 23 || m > 59 {
		return Slot{}, fmt.Errorf("slot %q: out of range", s)
	}
	slot := Slot{Hour: h, Minute: m}
	if _, err := slotParser.Parse(slot.CronSpec()); err != nil {
		return Slot{}, fmt.Errorf("slot %q: %w", s, err)
	}
	return slot, nil
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// CronSpec returns the daily cron expression that fires at this slot.
func (s Slot) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour)
}

// Matches reports whether the wall clock is inside this slot's minute.
func (s Slot) Matches(hour, minute int) bool {
	return s.Hour == hour && s.Minute == minute
}

// Schedule is an ordered sequence of slots.
type Schedule []Slot

// ParseSchedule parses every literal; any bad literal fails the whole schedule.
func ParseSchedule(literals []string) (Schedule, error) {
	sched := make(Schedule, 0, len(literals))
	for _, lit := range literals {
		slot, err := ParseSlot(lit)
		if err != nil {
			return nil, err
		}
		sched = append(sched, slot)
	}
	return sched, nil
}

// Strings returns the slots as HH:MM literals.
func (s Schedule) Strings() []string {
	out := make([]string, len(s))
	for i, slot := range s {
		out[i] = slot.String()
	}
	return out
}

// Next returns the earliest slot start strictly after t, in t's location.
// Returns false for an empty schedule.
func (s Schedule) Next(t time.Time) (time.Time, bool) {
	var best time.Time
	for _, slot := range s {
		sched, err := slotParser.Parse(slot.CronSpec())
		if err != nil {
			continue
		}
		n := sched.Next(t)
		if best.IsZero() || n.Before(best) {
			best = n
		}
	}
	return best, !best.IsZero()
}
