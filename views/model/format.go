package model

import (
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// FormatAge renders the time elapsed since ts in its coarsest non-zero unit:
// days, hours or minutes. Anything under a minute is "<1m".
func FormatAge(ts *metav1.Time, now time.Time) string {
	if ts == nil || ts.IsZero() {
		return "Unknown"
	}
	elapsed := now.Sub(ts.Time)
	days := int(elapsed / (24 * time.Hour))
	hours := int(elapsed / time.Hour)
	mins := int(elapsed / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd", days)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	case mins > 0:
		return fmt.Sprintf("%dm", mins)
	}
	return "<1m"
}
