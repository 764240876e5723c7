// Package dates turns free-form date text into a calendar day.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmfshirokan/PriceCompare/internal/model"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

const Layout = time.DateOnly

type Resolver interface {
	// Resolve returns the ISO day for text relative to reference, or
	// ok=false when nothing date-like could be found.
	Resolve(text string, reference time.Time) (iso string, ok bool)
}

type resolver struct {
	parser *when.Parser
}

func NewResolver() Resolver {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	return &resolver{parser: w}
}

var (
	isoLike      = regexp.MustCompile(`^(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})$`)
	yearLast     = regexp.MustCompile(`^(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})$`)
	relativeAgo  = regexp.MustCompile(`^(\d+|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+(day|week|month|year)s?\s+ago$`)
	relativeLast = regexp.MustCompile(`^(?:last|previous|past)\s+(day|week|month|year)$`)
)

// maxAgo caps "N units ago" at roughly a century.
var maxAgo = map[string]int{"day": 36600, "week": 5220, "month": 1200, "year": 100}

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

func (r *resolver) Resolve(text string, reference time.Time) (string, bool) {
	day, ok := r.resolve(text, reference)
	if !ok {
		return "", false
	}

	return day.Format(Layout), true
}

func (r *resolver) resolve(text string, ref time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.Join(strings.Fields(text), " "))
	s = strings.TrimPrefix(s, "on ")
	if s == "" {
		return time.Time{}, false
	}

	today := truncate(ref)

	switch s {
	case "today", "now", "current", "todays date", "today's date":
		return today, true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "day before yesterday", "the day before yesterday":
		return today.AddDate(0, 0, -2), true
	}

	if m := relativeAgo.FindStringSubmatch(s); m != nil {
		n, ok := numberWords[m[1]]
		if !ok {
			var err error
			if n, err = strconv.Atoi(m[1]); err != nil {
				return time.Time{}, false
			}
		}
		if n > maxAgo[m[2]] {
			return time.Time{}, false
		}
		return shift(today, m[2], n), true
	}

	if m := relativeLast.FindStringSubmatch(s); m != nil {
		return shift(today, m[1], 1), true
	}

	if m := isoLike.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		a, _ := strconv.Atoi(m[2])
		b, _ := strconv.Atoi(m[3])
		return fix(year, a, b, ref.Location()), true
	}

	if m := yearLast.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		// month-first unless the first field cannot be a month
		return fix(year, a, b, ref.Location()), true
	}

	res, err := r.parser.Parse(text, ref)
	if err != nil || res == nil {
		return time.Time{}, false
	}

	// "tomorrow" and "next friday" have no closing price yet
	day := truncate(res.Time)
	if day.After(today) {
		return time.Time{}, false
	}

	return day, true
}

// Parse resolves text against reference and returns the day at midnight in
// reference's location, wrapping model.ErrInvalidDate on failure.
func Parse(r Resolver, text string, reference time.Time) (time.Time, error) {
	iso, ok := r.Resolve(text, reference)
	if !ok {
		return time.Time{}, fmt.Errorf("%q: %w", text, model.ErrInvalidDate)
	}

	day, err := time.ParseInLocation(Layout, iso, reference.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", text, model.ErrInvalidDate)
	}

	return day, nil
}

// fix builds a valid day from a month/day pair that may be swapped or out of
// range: 2025-31-12 becomes 2025-12-31 and 2025-02-30 becomes 2025-02-28.
func fix(year, month, day int, loc *time.Location) time.Time {
	if month > 12 && day >= 1 && day <= 12 {
		month, day = day, month
	}
	month = clamp(month, 1, 12)
	day = clamp(day, 1, daysIn(year, time.Month(month)))

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

func shift(today time.Time, unit string, n int) time.Time {
	switch unit {
	case "day":
		return today.AddDate(0, 0, -n)
	case "week":
		return today.AddDate(0, 0, -7*n)
	case "month":
		return addMonths(today, -n)
	default:
		return addMonths(today, -12*n)
	}
}

// addMonths moves by whole months, clamping the day so Mar 31 - 1 month is Feb 28/29.
func addMonths(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := min(t.Day(), daysIn(first.Year(), first.Month()))

	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
