package progress

import (
	"fmt"
	"time"
)

const (
	kilo = 1000
	mega = 1000 * 1000
	giga = 1000 * 1000 * 1000
)

// FormatSize renders a byte count with decimal units. A unit is chosen only
// once the value is strictly above its threshold.
func FormatSize(b int64) string {
	switch {
	case b > giga:
		return fmt.Sprintf("%.2f GB", float64(b)/giga)
	case b > mega:
		return fmt.Sprintf("%.2f MB", float64(b)/mega)
	case b > kilo:
		return fmt.Sprintf("%.2f KB", float64(b)/kilo)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// FormatProgress renders "received / total unit (pct%)" using the unit
// picked for total.
func FormatProgress(received, total int64) string {
	pct := percent(received, total)
	switch {
	case total > giga:
		return fmt.Sprintf("%.2f / %.2f GB (%.2f%%)", float64(received)/giga, float64(total)/giga, pct)
	case total > mega:
		return fmt.Sprintf("%.2f / %.2f MB (%.2f%%)", float64(received)/mega, float64(total)/mega, pct)
	case total > kilo:
		return fmt.Sprintf("%.2f / %.2f KB (%.2f%%)", float64(received)/kilo, float64(total)/kilo, pct)
	default:
		return fmt.Sprintf("%d / %d B (%.2f%%)", received, total, pct)
	}
}

func FormatSpeed(bps float64) string {
	switch {
	case bps > giga:
		return fmt.Sprintf("%.2f GB/s", bps/giga)
	case bps > mega:
		return fmt.Sprintf("%.2f MB/s", bps/mega)
	case bps > kilo:
		return fmt.Sprintf("%.2f KB/s", bps/kilo)
	default:
		return fmt.Sprintf("%.2f B/s", bps)
	}
}

// FormatETA renders a remaining time; ok=false means unknown.
func FormatETA(eta time.Duration, ok bool) string {
	if !ok {
		return "unknown time remaining"
	}
	secs := eta.Seconds()
	switch {
	case secs > 3600:
		return fmt.Sprintf("%.2f hours remaining", secs/3600)
	case secs > 60:
		return fmt.Sprintf("%.2f minutes remaining", secs/60)
	default:
		return fmt.Sprintf("%.2f seconds remaining", secs)
	}
}
