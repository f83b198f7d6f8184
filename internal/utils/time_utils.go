package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var units = map[string]time.Duration{
	"s": time.Second,
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
}

// ParseStringTime parses short duration strings such as "30s", "5M", "48h" or "2d".
// Anything time.ParseDuration understands is accepted too. An empty string is zero.
func ParseStringTime(timeString string) (time.Duration, error) {
	timeString = strings.TrimSpace(strings.ToLower(timeString))
	if timeString == "" {
		return 0, nil
	}
	if unit, ok := units[timeString[len(timeString)-1:]]; ok {
		if number, err := strconv.Atoi(timeString[:len(timeString)-1]); err == nil {
			if number < 0 {
				return 0, fmt.Errorf("negative duration: %s", timeString)
			}
			return time.Duration(number) * unit, nil
		}
	}
	d, err := time.ParseDuration(timeString)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %s", timeString)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration: %s", timeString)
	}
	return d, nil
}
