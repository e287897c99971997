package conversation

import (
	"regexp"
	"strings"
	"time"

	"staybot/internal/domain"
)

// rangePattern matches paired ranges like "24th Nov - 30th Nov 2025".
var rangePattern = regexp.MustCompile(`(?i)(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)\s*[-–—]\s*(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)(?:\s+(\d{4}))?`)

// standalonePatterns match single dates used when no paired range is present.
var standalonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[-/]\d{1,2}[-/]\d{2,4}`),    // MM-DD-YYYY or DD-MM-YYYY
	regexp.MustCompile(`(?i)[A-Za-z]+\s+\d{1,2},?\s+\d{4}`), // December 1, 2025
	regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`),       // YYYY-MM-DD
}

var standaloneLayouts = []string{
	"2006-01-02",
	"1-2-2006",
	"2-1-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
}

// ExtractDates scans message texts for a check-in/check-out pair. A paired
// range in a single message wins; otherwise the first two standalone dates
// found across all texts are taken positionally as check-in then check-out.
// The pair is reported as mentioned, with no ordering validation.
func ExtractDates(texts []string) *domain.DateRange {
	now := time.Now()

	var found []string
	for _, text := range texts {
		if m := rangePattern.FindStringSubmatch(text); m != nil {
			year := m[5]
			if year == "" {
				year = now.Format("2006")
			}
			in := parseDayMonth(m[1], m[2], year)
			out := parseDayMonth(m[3], m[4], year)
			if in != nil && out != nil {
				return &domain.DateRange{
					CheckIn:  in.Format("2006-01-02"),
					CheckOut: out.Format("2006-01-02"),
				}
			}
		}

		for _, p := range standalonePatterns {
			found = append(found, p.FindAllString(text, -1)...)
		}
	}

	var parsed []time.Time
	for _, raw := range found {
		if len(parsed) >= 4 {
			break
		}
		normalized := strings.ReplaceAll(raw, "/", "-")
		for _, layout := range standaloneLayouts {
			if t, err := time.Parse(layout, normalized); err == nil {
				parsed = append(parsed, t)
				break
			}
		}
	}

	if len(parsed) >= 2 {
		return &domain.DateRange{
			CheckIn:  parsed[0].Format("2006-01-02"),
			CheckOut: parsed[1].Format("2006-01-02"),
		}
	}
	return nil
}

func parseDayMonth(day, month, year string) *time.Time {
	for _, layout := range []string{"2 Jan 2006", "2 January 2006"} {
		if t, err := time.Parse(layout, day+" "+month+" "+year); err == nil {
			return &t
		}
	}
	return nil
}
