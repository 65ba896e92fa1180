package recognizer

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Expression patterns for English time parsing
var (
	recurEveryPattern = regexp.MustCompile(`(?i)\bevery\s+(other\s+)?(\d+\s+)?(day|week|month|year|morning|afternoon|evening|night|monday|tuesday|wednesday|thursday|friday|saturday|sunday)s?\b`)
	recurWordPattern  = regexp.MustCompile(`(?i)\b(daily|weekly|monthly|yearly|annually)\b`)

	relDayPattern = regexp.MustCompile(`(?i)\b(day\s+after\s+tomorrow|tomorrow|today|tonight)\b`)
	inPattern     = regexp.MustCompile(`(?i)\bin\s+(\d+|an|a)\s+(minute|hour|day|week|month|year)s?\b`)

	weekdayNamePattern = regexp.MustCompile(`(?i)\b(next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	monthDayPattern    = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b`)

	clockAmPmPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\b`)
	clock24Pattern   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)
	bareAtPattern    = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	periodPattern    = regexp.MustCompile(`(?i)\b(noon|midnight|morning|afternoon|evening|night)\b`)

	gapTokenPattern = regexp.MustCompile(`(?i)^(at|on|the|of|,)$`)
)

// monthMap maps English month names and abbreviations to months.
var monthMap = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// weekdayMap maps English weekday names to time.Weekday.
var weekdayMap = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// periodHours maps day-period keywords to typical hours.
var periodHours = map[string]int{
	"morning":   9,
	"afternoon": 14,
	"evening":   19,
	"night":     21,
}

// Matcher priorities. On overlapping spans the higher priority wins; the
// bare "at N" heuristic loses to any explicit clock form covering the same
// digits.
const (
	prioIn        = 90
	prioRecur     = 85
	prioRelDay    = 80
	prioDate      = 70
	prioWeekday   = 60
	prioClockAmPm = 50
	prioClock24   = 45
	prioPeriod    = 40
	prioBareAt    = 10
)

// exprMatch is one matched span with the partial date/time it contributes.
// Adjacent spans connected only by filler words merge into one candidate.
type exprMatch struct {
	start, end int
	prio       int

	hasDate bool
	year    int
	month   time.Month
	day     int

	hasTime bool
	hour    int
	minute  int
	second  int

	// absolute is set for fully-resolved relative expressions ("in 2 hours").
	absolute *time.Time

	recurUnit string
	recurSize int
}

// EnglishBackend is the grammar/rule-based parser for English locales.
type EnglishBackend struct{}

func NewEnglishBackend() *EnglishBackend {
	return &EnglishBackend{}
}

func (b *EnglishBackend) Name() string {
	return "english"
}

func (b *EnglishBackend) Locales() []string {
	return []string{"en", "en-US", "en-GB", "en-AU", "en-CA", "en-IN"}
}

func (b *EnglishBackend) Recognize(_ context.Context, text string, ref time.Time) ([]Candidate, error) {
	matches := b.collectMatches(text, ref)
	matches = resolveOverlaps(matches)
	groups := mergeAdjacent(text, matches)

	var candidates []Candidate
	for _, g := range groups {
		if c, ok := g.toCandidate(text, ref); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (b *EnglishBackend) collectMatches(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	out = append(out, matchRecurrence(text, ref)...)
	out = append(out, matchRelativeDays(text, ref)...)
	out = append(out, matchIn(text, ref)...)
	out = append(out, matchWeekdays(text, ref)...)
	out = append(out, matchNumericDates(text, ref)...)
	out = append(out, matchMonthNameDates(text, ref)...)
	out = append(out, matchClocks(text)...)
	out = append(out, matchPeriods(text)...)
	return out
}

func matchRecurrence(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range recurEveryPattern.FindAllStringSubmatchIndex(text, -1) {
		m := exprMatch{start: idx[0], end: idx[1], prio: prioRecur, recurSize: 1}
		if idx[2] >= 0 { // "other"
			m.recurSize = 2
		}
		if idx[4] >= 0 {
			n, err := strconv.Atoi(strings.TrimSpace(text[idx[4]:idx[5]]))
			if err != nil || n < 1 {
				continue
			}
			m.recurSize = n
		}
		word := strings.ToLower(text[idx[6]:idx[7]])
		switch {
		case word == "day" || word == "week" || word == "month" || word == "year":
			m.recurUnit = word
		case periodHours[word] != 0:
			// "every morning" recurs daily at the period's typical hour.
			m.recurUnit = UnitDay
			m.hasTime = true
			m.hour = periodHours[word]
		default:
			wd, ok := weekdayMap[word]
			if !ok {
				continue
			}
			m.recurUnit = UnitWeek
			m.hasDate = true
			m.year, m.month, m.day = nextWeekday(ref, wd).Date()
		}
		out = append(out, m)
	}
	for _, idx := range recurWordPattern.FindAllStringSubmatchIndex(text, -1) {
		m := exprMatch{start: idx[0], end: idx[1], prio: prioRecur, recurSize: 1}
		switch strings.ToLower(text[idx[2]:idx[3]]) {
		case "daily":
			m.recurUnit = UnitDay
		case "weekly":
			m.recurUnit = UnitWeek
		case "monthly":
			m.recurUnit = UnitMonth
		case "yearly", "annually":
			m.recurUnit = UnitYear
		}
		out = append(out, m)
	}
	return out
}

func matchRelativeDays(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range relDayPattern.FindAllStringSubmatchIndex(text, -1) {
		m := exprMatch{start: idx[0], end: idx[1], prio: prioRelDay, hasDate: true}
		word := strings.ToLower(text[idx[2]:idx[3]])
		switch {
		case strings.HasPrefix(word, "day"):
			m.year, m.month, m.day = ref.AddDate(0, 0, 2).Date()
		case word == "tomorrow":
			m.year, m.month, m.day = ref.AddDate(0, 0, 1).Date()
		case word == "tonight":
			m.year, m.month, m.day = ref.Date()
			m.hasTime = true
			m.hour = 20
		default: // today
			m.year, m.month, m.day = ref.Date()
		}
		out = append(out, m)
	}
	return out
}

func matchIn(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range inPattern.FindAllStringSubmatchIndex(text, -1) {
		n := 1
		num := strings.ToLower(text[idx[2]:idx[3]])
		if num != "a" && num != "an" {
			v, err := strconv.Atoi(num)
			if err != nil || v < 1 {
				continue
			}
			n = v
		}
		var abs time.Time
		switch strings.ToLower(text[idx[4]:idx[5]]) {
		case "minute":
			abs = ref.Add(time.Duration(n) * time.Minute)
		case "hour":
			abs = ref.Add(time.Duration(n) * time.Hour)
		case "day":
			abs = ref.AddDate(0, 0, n)
		case "week":
			abs = ref.AddDate(0, 0, 7*n)
		case "month":
			abs = ref.AddDate(0, n, 0)
		case "year":
			abs = ref.AddDate(n, 0, 0)
		default:
			continue
		}
		out = append(out, exprMatch{start: idx[0], end: idx[1], prio: prioIn, absolute: &abs})
	}
	return out
}

func matchWeekdays(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range weekdayNamePattern.FindAllStringSubmatchIndex(text, -1) {
		wd, ok := weekdayMap[strings.ToLower(text[idx[4]:idx[5]])]
		if !ok {
			continue
		}
		m := exprMatch{start: idx[0], end: idx[1], prio: prioWeekday, hasDate: true}
		m.year, m.month, m.day = nextWeekday(ref, wd).Date()
		out = append(out, m)
	}
	return out
}

// nextWeekday returns the next occurrence of wd strictly after ref's date.
// A bare weekday naming today means next week, not right now.
func nextWeekday(ref time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(ref.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return ref.AddDate(0, 0, days)
}

func matchNumericDates(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range numericDatePattern.FindAllStringSubmatchIndex(text, -1) {
		month, _ := strconv.Atoi(text[idx[2]:idx[3]])
		day, _ := strconv.Atoi(text[idx[4]:idx[5]])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		m := exprMatch{start: idx[0], end: idx[1], prio: prioDate, hasDate: true,
			month: time.Month(month), day: day}
		if idx[6] >= 0 {
			year, _ := strconv.Atoi(text[idx[6]:idx[7]])
			if year < 100 {
				year += 2000
			}
			m.year = year
		} else {
			m.year = yearAnchoredForward(ref, time.Month(month), day)
		}
		out = append(out, m)
	}
	return out
}

func matchMonthNameDates(text string, ref time.Time) []exprMatch {
	var out []exprMatch
	for _, idx := range monthDayPattern.FindAllStringSubmatchIndex(text, -1) {
		month := monthMap[strings.ToLower(text[idx[2]:idx[3]])]
		day, _ := strconv.Atoi(text[idx[4]:idx[5]])
		if day < 1 || day > 31 {
			continue
		}
		m := exprMatch{start: idx[0], end: idx[1], prio: prioDate, hasDate: true,
			month: month, day: day}
		if idx[6] >= 0 {
			m.year, _ = strconv.Atoi(text[idx[6]:idx[7]])
		} else {
			m.year = yearAnchoredForward(ref, month, day)
		}
		out = append(out, m)
	}
	for _, idx := range dayMonthPattern.FindAllStringSubmatchIndex(text, -1) {
		day, _ := strconv.Atoi(text[idx[2]:idx[3]])
		month := monthMap[strings.ToLower(text[idx[4]:idx[5]])]
		if day < 1 || day > 31 {
			continue
		}
		m := exprMatch{start: idx[0], end: idx[1], prio: prioDate, hasDate: true,
			month: month, day: day, year: yearAnchoredForward(ref, month, day)}
		out = append(out, m)
	}
	return out
}

// yearAnchoredForward picks ref's year, or the next one when the month/day
// already passed this year.
func yearAnchoredForward(ref time.Time, month time.Month, day int) int {
	candidate := time.Date(ref.Year(), month, day, 23, 59, 59, 0, ref.Location())
	if candidate.Before(ref) {
		return ref.Year() + 1
	}
	return ref.Year()
}

func matchClocks(text string) []exprMatch {
	var out []exprMatch
	for _, idx := range clockAmPmPattern.FindAllStringSubmatchIndex(text, -1) {
		hour, _ := strconv.Atoi(text[idx[2]:idx[3]])
		if hour < 1 || hour > 12 {
			continue
		}
		minute := 0
		if idx[4] >= 0 {
			minute, _ = strconv.Atoi(text[idx[4]:idx[5]])
		}
		if minute > 59 {
			continue
		}
		meridiem := strings.ToLower(text[idx[6]:idx[7]])
		if meridiem == "p" && hour < 12 {
			hour += 12
		} else if meridiem == "a" && hour == 12 {
			hour = 0
		}
		out = append(out, exprMatch{start: idx[0], end: idx[1], prio: prioClockAmPm,
			hasTime: true, hour: hour, minute: minute})
	}
	for _, idx := range clock24Pattern.FindAllStringSubmatchIndex(text, -1) {
		hour, _ := strconv.Atoi(text[idx[2]:idx[3]])
		minute, _ := strconv.Atoi(text[idx[4]:idx[5]])
		second := 0
		if idx[6] >= 0 {
			second, _ = strconv.Atoi(text[idx[6]:idx[7]])
		}
		if hour > 23 || minute > 59 || second > 59 {
			continue
		}
		out = append(out, exprMatch{start: idx[0], end: idx[1], prio: prioClock24,
			hasTime: true, hour: hour, minute: minute, second: second})
	}
	for _, idx := range bareAtPattern.FindAllStringSubmatchIndex(text, -1) {
		hour, _ := strconv.Atoi(text[idx[2]:idx[3]])
		if hour > 23 {
			continue
		}
		// Bare "at 5" is ambiguous. Hours 1-6 read as afternoon or evening,
		// 7-11 as morning, everything else is taken literally.
		if hour >= 1 && hour <= 6 {
			hour += 12
		}
		out = append(out, exprMatch{start: idx[0], end: idx[1], prio: prioBareAt,
			hasTime: true, hour: hour})
	}
	return out
}

func matchPeriods(text string) []exprMatch {
	var out []exprMatch
	for _, idx := range periodPattern.FindAllStringSubmatchIndex(text, -1) {
		m := exprMatch{start: idx[0], end: idx[1], prio: prioPeriod, hasTime: true}
		switch word := strings.ToLower(text[idx[2]:idx[3]]); word {
		case "noon":
			m.hour = 12
		case "midnight":
			m.hour = 0
		default:
			m.hour = periodHours[word]
		}
		out = append(out, m)
	}
	return out
}

// resolveOverlaps keeps at most one match per overlapping region, preferring
// higher priority, then longer spans, then earlier starts.
func resolveOverlaps(matches []exprMatch) []exprMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.prio != b.prio {
			return a.prio > b.prio
		}
		if al, bl := a.end-a.start, b.end-b.start; al != bl {
			return al > bl
		}
		return a.start < b.start
	})

	var kept []exprMatch
	for _, m := range matches {
		overlaps := false
		for _, k := range kept {
			if m.start < k.end && k.start < m.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })
	return kept
}

// mergeAdjacent joins consecutive matches separated only by filler words,
// so "tomorrow at 2 PM" and "every day at 9 AM" become single candidates.
// Matches contributing the same component stay separate.
func mergeAdjacent(text string, matches []exprMatch) []exprMatch {
	var groups []exprMatch
	for _, m := range matches {
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if isConnectorGap(text[last.end:m.start]) && mergeInto(last, m) {
				continue
			}
		}
		groups = append(groups, m)
	}
	return groups
}

func isConnectorGap(gap string) bool {
	gap = strings.ReplaceAll(gap, ",", " , ")
	for _, tok := range strings.Fields(gap) {
		if !gapTokenPattern.MatchString(tok) {
			return false
		}
	}
	return true
}

// mergeInto folds next into dst when their components do not conflict.
func mergeInto(dst *exprMatch, next exprMatch) bool {
	if dst.hasDate && next.hasDate {
		return false
	}
	if dst.hasTime && next.hasTime {
		return false
	}
	if dst.absolute != nil && next.absolute != nil {
		return false
	}
	if dst.recurUnit != "" && next.recurUnit != "" {
		return false
	}
	if next.hasDate {
		dst.hasDate = true
		dst.year, dst.month, dst.day = next.year, next.month, next.day
	}
	if next.hasTime {
		dst.hasTime = true
		dst.hour, dst.minute, dst.second = next.hour, next.minute, next.second
	}
	if next.absolute != nil {
		dst.absolute = next.absolute
	}
	if next.recurUnit != "" {
		dst.recurUnit = next.recurUnit
		dst.recurSize = next.recurSize
	}
	dst.end = next.end
	return true
}

// toCandidate renders a merged group into a ranked candidate.
func (m exprMatch) toCandidate(text string, ref time.Time) (Candidate, bool) {
	c := Candidate{
		Text:           text[m.start:m.end],
		Start:          m.start,
		RecurrenceUnit: m.recurUnit,
		RecurrenceSize: m.recurSize,
	}
	if m.recurUnit == "" {
		c.RecurrenceSize = 0
	}

	if m.absolute != nil {
		abs := *m.absolute
		if m.hasTime {
			abs = time.Date(abs.Year(), abs.Month(), abs.Day(),
				m.hour, m.minute, m.second, 0, ref.Location())
		}
		c.Value = abs.Format(ValueDateTimeLayout)
		return c, true
	}

	switch {
	case m.hasDate && m.hasTime:
		c.Value = time.Date(m.year, m.month, m.day, m.hour, m.minute, m.second, 0,
			ref.Location()).Format(ValueDateTimeLayout)
	case m.hasDate:
		c.Value = time.Date(m.year, m.month, m.day, 0, 0, 0, 0,
			ref.Location()).Format(ValueDateLayout)
	case m.hasTime:
		c.Value = time.Date(0, 1, 1, m.hour, m.minute, m.second, 0,
			time.UTC).Format(ValueTimeLayout)
	case m.recurUnit != "":
		// A bare recurrence ("every day") anchors to the reference date; the
		// engine advances it past the reference instant.
		c.Value = ref.Format(ValueDateLayout)
	default:
		return Candidate{}, false
	}
	return c, true
}
