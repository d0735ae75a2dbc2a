package feed

import (
	"strings"
	"time"
)

// LastUpdateLayout is the feed's last_update format (MM/DD/YYYY HH:MM:SS).
const LastUpdateLayout = "01/02/2006 15:04:05"

// lenient fallback for feeds that drop leading zeros
const lastUpdateLayoutShort = "1/2/2006 15:04:05"

// ParseLastUpdate parses a last_update value in loc (UTC when nil).
func ParseLastUpdate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	t, err := time.ParseInLocation(LastUpdateLayout, s, loc)
	if err == nil {
		return t, nil
	}
	if t2, err2 := time.ParseInLocation(lastUpdateLayoutShort, s, loc); err2 == nil {
		return t2, nil
	}
	return time.Time{}, err
}
