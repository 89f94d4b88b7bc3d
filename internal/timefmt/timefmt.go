// Package timefmt renders remaining-time and duration labels shown in
// the session badge and the admin roster.
package timefmt

import (
	"fmt"
	"time"
)

// Remaining formats a time-left value using the largest applicable
// bucket, dropping the lower unit when its remainder is zero:
// "2mo 3d", "1d 1h", "3h 15m", "1m 30s", "45s". Zero or negative
// durations render "Expired".
func Remaining(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}

	seconds := int(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days >= 30:
		months := days / 30
		if rem := days % 30; rem != 0 {
			return fmt.Sprintf("%dmo %dd", months, rem)
		}
		return fmt.Sprintf("%dmo", months)
	case days > 0:
		if rem := hours % 24; rem != 0 {
			return fmt.Sprintf("%dd %dh", days, rem)
		}
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		if rem := minutes % 60; rem != 0 {
			return fmt.Sprintf("%dh %dm", hours, rem)
		}
		return fmt.Sprintf("%dh", hours)
	case minutes > 0:
		if rem := seconds % 60; rem != 0 {
			return fmt.Sprintf("%dm %ds", minutes, rem)
		}
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// RemainingUntil formats the time left from now until the given expiry.
func RemainingUntil(expiresAt, now time.Time) string {
	return Remaining(expiresAt.Sub(now))
}

// DurationLabel renders an allotted duration in the coarsest readable
// unit with one decimal place above an hour: "30 minutes", "1.5 hours",
// "3.0 days", "1.2 months", "1.1 years". Non-positive input falls back
// to the default 30-minute label.
func DurationLabel(minutes int) string {
	if minutes <= 0 {
		return "30 minutes"
	}
	if minutes >= 1440 {
		days := float64(minutes) / 1440
		if days >= 30 {
			months := days / 30
			if months >= 12 {
				return fmt.Sprintf("%.1f years", months/12)
			}
			return fmt.Sprintf("%.1f months", months)
		}
		return fmt.Sprintf("%.1f days", days)
	}
	if minutes >= 60 {
		return fmt.Sprintf("%.1f hours", float64(minutes)/60)
	}
	return fmt.Sprintf("%d minutes", minutes)
}
