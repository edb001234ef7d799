package model

import (
	"strconv"
	"strings"
	"time"
)

// NowUTC returns the current time in UTC. All timestamps in the system are
// UTC; venue payloads with naive times are treated as UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

var windowMultipliers = []struct {
	suffix string
	secs   float64
}{
	{"s", 1},
	{"m", 60},
	{"h", 3600},
	{"d", 86400},
	{"w", 604800},
}

// WindowToSeconds parses a lookback window like "4h", "30m", "3d" into
// seconds. A bare number is taken as seconds. Malformed input falls back to
// one hour rather than erroring: windows are advisory lookbacks, not orders.
func WindowToSeconds(window string) int {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		return 3600
	}
	for _, m := range windowMultipliers {
		if strings.HasSuffix(window, m.suffix) {
			numStr := strings.TrimSpace(strings.TrimSuffix(window, m.suffix))
			if numStr == "" {
				numStr = "1"
			}
			n, err := strconv.ParseFloat(numStr, 64)
			if err != nil {
				return 3600
			}
			return int(n * m.secs)
		}
	}
	if n, err := strconv.Atoi(window); err == nil {
		return n
	}
	return 3600
}
