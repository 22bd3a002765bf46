// Package dates infers civil dates from handwritten-note transcriptions.
// Notes carry dates in whatever shape the writer used that day, so
// parsing tries a series of layouts from most to least specific and tags
// the result with the precision it actually established.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Precision tags for an inferred date.
const (
	PrecisionDay   = "day"
	PrecisionMonth = "month"
	PrecisionYear  = "year"
)

// Inferred is a normalized date (always YYYY-MM-DD; month and year
// precision pad with the first day) plus the precision that produced it.
type Inferred struct {
	Value     string
	Precision string
}

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	isoRE     = regexp.MustCompile(`\b(19\d{2}|20\d{2})[-/.](0?[1-9]|1[0-2])[-/.](0?[1-9]|[12]\d|3[01])\b`)
	numRE     = regexp.MustCompile(`\b(0?[1-9]|1[0-2])[-./_](0?[1-9]|[12]\d|3[01])[-./_](\d{2,4}|'\d{2}|’\d{2})\b`)
	nameDayRE = regexp.MustCompile(`(?i)\b(\w{3,9})\.?,?\s+([0-3]?\d)(?:st|nd|rd|th)?,?\s+(\d{2,4}|'\d{2}|’\d{2})\b`)
	dayNameRE = regexp.MustCompile(`(?i)\b([0-3]?\d)(?:st|nd|rd|th)?\s+(\w{3,9})\.?,?\s+(\d{2,4}|'\d{2}|’\d{2})\b`)
	compactRE = regexp.MustCompile(`\b(19\d{2}|20\d{2})(0[1-9]|1[0-2])([012]\d|3[01])\b`)
	yearMonRE = regexp.MustCompile(`\b(19\d{2}|20\d{2})[-/.](0?[1-9]|1[0-2])\b`)
	monYearRE = regexp.MustCompile(`(?i)\b(\w{3,9})\.?,?\s+(\d{2,4}|'\d{2}|’\d{2})\b`)
	yearRE    = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
)

// ParseString extracts the first recognizable date in s. Layouts are
// tried from most to least specific so "March 2019" never shadows
// "March 3, 2019" appearing in the same string.
func ParseString(s string) (Inferred, bool) {
	if s == "" {
		return Inferred{}, false
	}
	if m := isoRE.FindStringSubmatch(s); m != nil {
		if d, ok := civil(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return Inferred{Value: d, Precision: PrecisionDay}, true
		}
	}
	if m := nameDayRE.FindStringSubmatch(s); m != nil {
		if mon, ok := monthByName(m[1]); ok {
			if d, ok := civil(yearFragment(m[3]), int(mon), atoi(m[2])); ok {
				return Inferred{Value: d, Precision: PrecisionDay}, true
			}
		}
	}
	if m := dayNameRE.FindStringSubmatch(s); m != nil {
		if mon, ok := monthByName(m[2]); ok {
			if d, ok := civil(yearFragment(m[3]), int(mon), atoi(m[1])); ok {
				return Inferred{Value: d, Precision: PrecisionDay}, true
			}
		}
	}
	if m := numRE.FindStringSubmatch(s); m != nil {
		if d, ok := civil(yearFragment(m[3]), atoi(m[1]), atoi(m[2])); ok {
			return Inferred{Value: d, Precision: PrecisionDay}, true
		}
	}
	if m := compactRE.FindStringSubmatch(s); m != nil {
		if d, ok := civil(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return Inferred{Value: d, Precision: PrecisionDay}, true
		}
	}
	if m := yearMonRE.FindStringSubmatch(s); m != nil {
		mo := atoi(m[2])
		if mo >= 1 && mo <= 12 {
			return Inferred{
				Value:     fmt.Sprintf("%04d-%02d-01", normalizeYear(atoi(m[1])), mo),
				Precision: PrecisionMonth,
			}, true
		}
	}
	if m := monYearRE.FindStringSubmatch(s); m != nil {
		if mon, ok := monthByName(m[1]); ok {
			if y := yearFragment(m[2]); y != 0 {
				return Inferred{
					Value:     fmt.Sprintf("%04d-%02d-01", normalizeYear(y), mon),
					Precision: PrecisionMonth,
				}, true
			}
		}
	}
	if m := yearRE.FindStringSubmatch(s); m != nil {
		return Inferred{
			Value:     fmt.Sprintf("%04d-01-01", normalizeYear(atoi(m[1]))),
			Precision: PrecisionYear,
		}, true
	}
	return Inferred{}, false
}

// FindInText scans the head of a transcription for a date. Writers put
// the date at the top of the page, so the first few non-blank lines are
// tried individually before falling back to the leading chunk of text.
func FindInText(text string) (Inferred, bool) {
	const (
		headLines = 5
		headChars = 600
	)
	if text == "" {
		return Inferred{}, false
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if d, ok := ParseString(line); ok {
			return d, true
		}
		n++
		if n >= headLines {
			break
		}
	}
	head := text
	if len(head) > headChars {
		head = head[:headChars]
	}
	return ParseString(head)
}

// normalizeYear expands two-digit years: 00 through 49 land in the
// 2000s, the rest in the 1900s.
func normalizeYear(y int) int {
	if y >= 100 {
		return y
	}
	if y <= 49 {
		return 2000 + y
	}
	return 1900 + y
}

func civil(y, m, d int) (string, bool) {
	y = normalizeYear(y)
	if m < 1 || m > 12 || d < 1 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || t.Month() != time.Month(m) || t.Day() != d {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}

func monthByName(name string) (time.Month, bool) {
	mon, ok := months[strings.TrimSuffix(strings.ToLower(name), ".")]
	return mon, ok
}

func yearFragment(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimPrefix(s, "’")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
