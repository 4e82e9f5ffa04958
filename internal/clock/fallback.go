package clock

import "time"

var processStart = time.Now()

// fallbackNs uses the monotonic reading carried by time.Time.
func fallbackNs() int64 {
	return int64(time.Since(processStart))
}
