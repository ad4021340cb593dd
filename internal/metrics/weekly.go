package metrics

import (
	"sort"
	"time"

	"servicetracker/internal/models"
)

const (
	// DefaultWindow is the trailing period a weekly summary covers.
	DefaultWindow = 7 * 24 * time.Hour
	// DefaultThresholdHours marks a name as complete for the week.
	DefaultThresholdHours = 28

	StatusComplete = "complete"
	StatusPending  = "pending"
)

// WeeklyTotal summarises completed service hours for one name.
type WeeklyTotal struct {
	Name     string  `json:"name"`
	Hours    float64 `json:"hours"`
	Services int     `json:"services"`
	Status   string  `json:"status"`
	Label    string  `json:"label"`
}

// Complete reports whether the total reached the threshold.
func (w WeeklyTotal) Complete() bool {
	return w.Status == StatusComplete
}

// SummaryOptions tunes ComputeWeeklySummary. Zero values use the defaults.
type SummaryOptions struct {
	Window         time.Duration
	ThresholdHours float64
}

// ComputeWeeklySummary sums whole hours per name over records that ended
// strictly after now-window. Minutes and seconds never count.
func ComputeWeeklySummary(records []models.ServiceRecord, now time.Time, opts SummaryOptions) []WeeklyTotal {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	threshold := opts.ThresholdHours
	if threshold <= 0 {
		threshold = DefaultThresholdHours
	}
	since := now.Add(-window)

	type acc struct {
		hours    int64
		services int
	}
	state := make(map[string]*acc)
	for _, rec := range records {
		if rec.EndTime == nil || !rec.EndTime.After(since) {
			continue
		}
		target := state[rec.Name]
		if target == nil {
			target = &acc{}
			state[rec.Name] = target
		}
		target.hours += rec.WholeHours()
		target.services++
	}
	if len(state) == 0 {
		return nil
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]WeeklyTotal, 0, len(keys))
	for _, name := range keys {
		data := state[name]
		hours := float64(data.hours)
		result := WeeklyTotal{
			Name:     name,
			Hours:    hours,
			Services: data.services,
			Status:   StatusPending,
			Label:    "Pendiente",
		}
		if hours >= threshold {
			result.Status = StatusComplete
			result.Label = "Completado"
		}
		results = append(results, result)
	}
	return results
}
