package source

import (
	"fmt"
	"strings"
	"time"
)

// FormatCodeSet renders codes as a 1C list literal body: "c1","c2",...
// Embedded quotes are doubled. An empty input yields an empty string; callers
// must substitute a placeholder code before embedding it into a query.
func FormatCodeSet(codes []string) string {
	if len(codes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, code := range codes {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(code, `"`, `""`))
		b.WriteByte('"')
	}
	return b.String()
}

// DateTimeLiteral renders the calendar day of t with the given clock as a 1C
// DATETIME constructor.
func DateTimeLiteral(t time.Time, hour, minute, second int) string {
	return fmt.Sprintf("DATETIME(%04d, %02d, %02d, %02d, %02d, %02d)",
		t.Year(), int(t.Month()), t.Day(), hour, minute, second)
}

// PeriodBounds returns the literal pair covering [from, to] in whole days.
func PeriodBounds(from, to time.Time) (string, string) {
	return DateTimeLiteral(from, 0, 0, 1), DateTimeLiteral(to, 23, 59, 5)
}
