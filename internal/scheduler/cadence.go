package scheduler

import "time"

// Cadence computes the next firing time strictly after a given instant.
type Cadence interface {
	Next(after time.Time) time.Time
}

// Every fires at a fixed interval.
type Every time.Duration

// Next returns after + interval.
func (e Every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}

// Daily fires once a day at Hour:Minute in Location.
type Daily struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the first daily slot strictly after the given time.
func (d Daily) Next(after time.Time) time.Time {
	loc := orUTC(d.Location)
	t := after.In(loc)
	slot := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !slot.After(after) {
		slot = slot.AddDate(0, 0, 1)
	}
	return slot
}

// Weekly fires once a week on Day at Hour:Minute in Location.
type Weekly struct {
	Day      time.Weekday
	Hour     int
	Minute   int
	Location *time.Location
}

// Next returns the first weekly slot strictly after the given time.
func (w Weekly) Next(after time.Time) time.Time {
	loc := orUTC(w.Location)
	t := after.In(loc)
	days := (int(w.Day) - int(t.Weekday()) + 7) % 7
	slot := time.Date(t.Year(), t.Month(), t.Day()+days, w.Hour, w.Minute, 0, 0, loc)
	if !slot.After(after) {
		slot = slot.AddDate(0, 0, 7)
	}
	return slot
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
