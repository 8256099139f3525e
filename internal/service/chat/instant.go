package chat

import (
	"fmt"
	"time"
)

const (
	birthDateLayout = "2006-01-02"
	birthTimeLayout = "15:04"
)

// ComposeUTCInstant interprets a wall-clock birth date and time in timezoneID and
// returns the same instant in UTC.
func ComposeUTCInstant(date, clock, timezoneID string) (time.Time, error) {
	loc, err := time.LoadLocation(timezoneID)
	if err != nil {
		return time.Time{}, fmt.Errorf("load timezone %q: %w", timezoneID, err)
	}

	local, err := time.ParseInLocation(birthDateLayout+" "+birthTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse birth instant: %w", err)
	}
	return local.UTC(), nil
}
