package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

// DefaultMinYear is the first year with sales in the source ledger.
const DefaultMinYear = 2016

const dateFormatHint = "input date in YYYY-MM-DD format"

// ValidateDates checks user supplied period bounds and parses them.
//
// Day numbers are only checked against 1-31; an overflowing day such as
// 2024-02-31 rolls into the following month.
func ValidateDates(startRaw, endRaw string, minYear int) (time.Time, time.Time, error) {
	if minYear <= 0 {
		minYear = DefaultMinYear
	}
	if err := checkShape("start_date", startRaw); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := checkShape("end_date", endRaw); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, err := parseDate("start_date", startRaw, minYear)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate("end_date", endRaw, minYear)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, &shared.ValidationError{
			Field:  "start_date",
			Value:  startRaw,
			Reason: fmt.Sprintf("must be earlier than end date %s", endRaw),
		}
	}
	return start, end, nil
}

func checkShape(field, raw string) error {
	if len(raw) != 10 || !strings.Contains(raw, "-") {
		return &shared.ValidationError{Field: field, Value: raw, Reason: dateFormatHint}
	}
	return nil
}

func parseDate(field, raw string, minYear int) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 3 {
		return time.Time{}, &shared.ValidationError{Field: field, Value: raw, Reason: dateFormatHint}
	}
	year, ok := component(parts[0], 4)
	if !ok || year < minYear {
		return time.Time{}, &shared.ValidationError{Field: field, Value: raw, Reason: fmt.Sprintf("year should be 4 digits (YYYY) and >= %d", minYear)}
	}
	month, ok := component(parts[1], 2)
	if !ok || month < 1 || month > 12 {
		return time.Time{}, &shared.ValidationError{Field: field, Value: raw, Reason: "month should be 2 digits (MM) and in range 1-12"}
	}
	day, ok := component(parts[2], 2)
	if !ok || day < 1 || day > 31 {
		return time.Time{}, &shared.ValidationError{Field: field, Value: raw, Reason: "day should be 2 digits (DD) and in range 1-31"}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

func component(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
