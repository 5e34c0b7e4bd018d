// Package ingest copies a time-windowed slice of a source SQL database into
// a staging table and records the outcome in the governance database.
package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Load modes.
const (
	ModeFull         = "full"
	ModeEOM          = "eom"
	ModeCurrentMonth = "current_month"
)

var (
	// ErrInvalidMode is returned for an unknown load mode.
	ErrInvalidMode = errors.New("invalid load mode")

	// ErrInvalidLockTime is returned for a lock time not shaped "DD HH:MM:SS".
	ErrInvalidLockTime = errors.New("invalid lock time")
)

// Window is the half-open range [Start, End) of source rows to load.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.DateTime), w.End.Format(time.DateTime))
}

// LockTime is a parsed "DD HH:MM:SS" lock time. Day is validated but only
// the time of day takes part in window arithmetic.
type LockTime struct {
	Day    int
	Offset time.Duration
}

// ParseLockTime parses "DD HH:MM:SS", e.g. "01 00:00:00".
func ParseLockTime(raw string) (LockTime, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return LockTime{}, fmt.Errorf("%w: %q", ErrInvalidLockTime, raw)
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return LockTime{}, fmt.Errorf("%w: day in %q", ErrInvalidLockTime, raw)
	}
	tod, err := time.Parse(time.TimeOnly, fields[1])
	if err != nil {
		return LockTime{}, fmt.Errorf("%w: time in %q", ErrInvalidLockTime, raw)
	}
	offset := time.Duration(tod.Hour())*time.Hour +
		time.Duration(tod.Minute())*time.Minute +
		time.Duration(tod.Second())*time.Second
	return LockTime{Day: day, Offset: offset}, nil
}

// at returns midnight of the given date plus the lock offset, in loc.
func (l LockTime) at(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc).Add(l.Offset)
}

// LoadWindow computes the load window for mode relative to now.
//
//   - full: starts at fullStart ("2006-01-02").
//   - eom: starts at the first day of the previous month.
//   - current_month: starts at the first day of now's month.
//
// Every start is taken at the lock time of day, and the window ends at the
// lock time on the first day of the month after the start. Dates are in
// now's location.
func LoadWindow(mode, lockTime, fullStart string, now time.Time) (Window, error) {
	lock, err := ParseLockTime(lockTime)
	if err != nil {
		return Window{}, err
	}
	loc := now.Location()

	var start time.Time
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeFull:
		d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(fullStart), loc)
		if err != nil {
			return Window{}, fmt.Errorf("full mode start date %q: %w", fullStart, err)
		}
		start = lock.at(d.Year(), d.Month(), d.Day(), loc)
	case ModeEOM:
		start = lock.at(now.Year(), now.Month()-1, 1, loc)
	case ModeCurrentMonth:
		start = lock.at(now.Year(), now.Month(), 1, loc)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	end := lock.at(start.Year(), start.Month()+1, 1, loc)
	return Window{Start: start, End: end}, nil
}
