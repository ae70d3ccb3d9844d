package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// StringPtr returns a pointer to a string, or nil if empty.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences s, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ContainsInt64 checks if an int64 slice contains a specific value.
func ContainsInt64(slice []int64, item int64) bool {
	for _, a := range slice {
		if a == item {
			return true
		}
	}
	return false
}

// RemoveInt64 returns slice without any occurrence of item. The input is not modified.
func RemoveInt64(slice []int64, item int64) []int64 {
	out := make([]int64, 0, len(slice))
	for _, a := range slice {
		if a != item {
			out = append(out, a)
		}
	}
	return out
}

// ParseID parses a positive database identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// OptionalID parses s as an ID, returning nil for an empty string.
func OptionalID(s string) (*int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	id, err := ParseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// FormatDuration renders a duration in its largest whole unit:
// "2 hour(s)", "5 minute(s)" or "30 second(s)".
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%d hour(s)", hours)
	case minutes > 0:
		return fmt.Sprintf("%d minute(s)", minutes)
	default:
		return fmt.Sprintf("%d second(s)", seconds)
	}
}

// FormatClock renders a duration as HH:MM:SS.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

// SplitDuration breaks d into hours, minutes and seconds for the exam form.
func SplitDuration(d time.Duration) (hours, minutes, seconds int) {
	total := int(d.Seconds())
	return total / 3600, (total % 3600) / 60, total % 60
}
