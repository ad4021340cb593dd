package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ServiceRecord is one start/end event pair for a named entity.
// EndTime and Duration are either both nil or both set.
type ServiceRecord struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Range     string     `json:"range"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Duration  *string    `json:"duration"`
	ElapsedMS *int64     `json:"elapsedMs,omitempty"`
}

// Completed reports whether the service has an end time.
func (r ServiceRecord) Completed() bool {
	return r.EndTime != nil
}

// Elapsed returns the raw elapsed time of a completed record.
// Records written before elapsedMs existed fall back to the formatted duration.
func (r ServiceRecord) Elapsed() (time.Duration, bool) {
	if !r.Completed() {
		return 0, false
	}
	if r.ElapsedMS != nil {
		return time.Duration(*r.ElapsedMS) * time.Millisecond, true
	}
	return r.EndTime.Sub(r.StartTime), true
}

// WholeHours is the number of whole hours the record contributes to a summary.
func (r ServiceRecord) WholeHours() int64 {
	if r.ElapsedMS != nil {
		return *r.ElapsedMS / int64(time.Hour/time.Millisecond)
	}
	if r.Duration == nil {
		return 0
	}
	return HoursFromDuration(*r.Duration)
}

// FormatDuration renders d as "<h>h <m>m <s>s", each unit floored.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

var hoursToken = regexp.MustCompile(`(\d+)h`)

// HoursFromDuration extracts the "<h>h" token of a formatted duration.
// Minutes and seconds are ignored; unparseable input yields 0.
func HoursFromDuration(duration string) int64 {
	match := hoursToken.FindStringSubmatch(duration)
	if match == nil {
		return 0
	}
	hours, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0
	}
	return hours
}
