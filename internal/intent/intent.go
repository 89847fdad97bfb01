// Package intent decides whether a chat message needs a live, externally
// sourced fact or can be answered by the language model alone.
package intent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Category identifies the kind of live fact a message asks for.
// The zero value is a plain query. Lower values win when several rules match.
type Category int

const (
	CategoryNone Category = iota
	CategoryCurrentChampion
	CategoryLastRaceWinner
	CategoryStandings
	CategoryUnknown
)

func (c Category) String() string {
	switch c {
	case CategoryNone:
		return "plain"
	case CategoryCurrentChampion:
		return "current_champion"
	case CategoryLastRaceWinner:
		return "last_race_winner"
	case CategoryStandings:
		return "standings"
	case CategoryUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// ParseCategory maps a rule-file category name to a Category.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current_champion":
		return CategoryCurrentChampion, nil
	case "last_race_winner":
		return CategoryLastRaceWinner, nil
	case "standings":
		return CategoryStandings, nil
	case "unknown":
		return CategoryUnknown, nil
	default:
		return CategoryNone, fmt.Errorf("unknown intent category %q", s)
	}
}

// Result is the outcome of classifying one message.
type Result struct {
	Category     Category
	NeedsHistory bool
	// Season is the year named by the matching rule, if any.
	Season string
}

// NeedsLiveFact reports whether the message asks for a time-sensitive fact.
func (r Result) NeedsLiveFact() bool { return r.Category != CategoryNone }

// IsPlain reports whether no rule matched at all.
func (r Result) IsPlain() bool { return r.Category == CategoryNone && !r.NeedsHistory }

// Rule is one row of the classification table. A rule matches when any
// pattern matches and no exclude pattern does.
type Rule struct {
	Category Category
	Patterns []string
	Exclude  []string
}

// SeasonWindow is the half-open range [From, To) of season years accepted by
// the {season} placeholder.
type SeasonWindow struct {
	From int
	To   int
}

// RecentSeasons returns the window [year-2, year+30).
func RecentSeasons(year int) SeasonWindow {
	return SeasonWindow{From: year - 2, To: year + 30}
}

func (w SeasonWindow) Contains(year int) bool {
	return year >= w.From && year < w.To
}

const seasonPlaceholder = "{season}"

type compiledPattern struct {
	re        *regexp.Regexp
	seasonIdx int
}

type compiledRule struct {
	category Category
	patterns []compiledPattern
	exclude  []*regexp.Regexp
}

// Classifier evaluates the rule table in priority order. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	rules  []compiledRule
	repeat []*regexp.Regexp
	window SeasonWindow
}

// New compiles rules and repeat-request phrasings. All matching is case-insensitive.
func New(rules []Rule, repeat []string, window SeasonWindow) (*Classifier, error) {
	c := &Classifier{window: window}
	for i, r := range rules {
		if r.Category == CategoryNone {
			return nil, fmt.Errorf("rule %d: category is required", i)
		}
		cr := compiledRule{category: r.Category}
		for _, p := range r.Patterns {
			cp, err := compilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, r.Category, err)
			}
			cr.patterns = append(cr.patterns, cp)
		}
		for _, p := range r.Exclude {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s) exclude %q: %w", i, r.Category, p, err)
			}
			cr.exclude = append(cr.exclude, re)
		}
		c.rules = append(c.rules, cr)
	}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].category < c.rules[j].category
	})

	for _, p := range repeat {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("repeat pattern %q: %w", p, err)
		}
		c.repeat = append(c.repeat, re)
	}
	return c, nil
}

// NewDefault builds a classifier from DefaultRules and DefaultRepeatPatterns
// with the recent-seasons window anchored at currentYear.
func NewDefault(currentYear int) *Classifier {
	c, err := New(DefaultRules, DefaultRepeatPatterns, RecentSeasons(currentYear))
	if err != nil {
		panic(fmt.Sprintf("intent: default rules do not compile: %v", err))
	}
	return c
}

func compilePattern(p string) (compiledPattern, error) {
	switch strings.Count(p, seasonPlaceholder) {
	case 0:
	case 1:
		p = strings.Replace(p, seasonPlaceholder, `(?P<season>\d{4})`, 1)
	default:
		return compiledPattern{}, fmt.Errorf("pattern %q: at most one %s placeholder allowed", p, seasonPlaceholder)
	}
	re, err := regexp.Compile("(?i)" + p)
	if err != nil {
		return compiledPattern{}, fmt.Errorf("pattern %q: %w", p, err)
	}
	return compiledPattern{re: re, seasonIdx: re.SubexpIndex("season")}, nil
}

// match reports whether p matches msg and, for {season} patterns, the
// accepted year.
func (p compiledPattern) match(msg string, window SeasonWindow) (bool, string) {
	if p.seasonIdx < 0 {
		return p.re.MatchString(msg), ""
	}
	for _, m := range p.re.FindAllStringSubmatch(msg, -1) {
		year, err := strconv.Atoi(m[p.seasonIdx])
		if err == nil && window.Contains(year) {
			return true, m[p.seasonIdx]
		}
	}
	return false, ""
}

func (r compiledRule) match(msg string, window SeasonWindow) (bool, string) {
	for _, ex := range r.exclude {
		if ex.MatchString(msg) {
			return false, ""
		}
	}
	for _, p := range r.patterns {
		if ok, season := p.match(msg, window); ok {
			return true, season
		}
	}
	return false, ""
}

// Classify maps a raw utterance to a Result. It performs no I/O.
func (c *Classifier) Classify(message string) Result {
	msg := normalize(message)
	if msg == "" {
		return Result{}
	}

	var res Result
	for _, r := range c.rules {
		if ok, season := r.match(msg, c.window); ok {
			res.Category = r.category
			res.Season = season
			break
		}
	}
	for _, re := range c.repeat {
		if re.MatchString(msg) {
			res.NeedsHistory = true
			break
		}
	}
	return res
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

func normalize(s string) string {
	return apostrophes.Replace(strings.TrimSpace(s))
}
