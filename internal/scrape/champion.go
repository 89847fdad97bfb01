package scrape

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Outcome tags an extraction Result.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeFound
	OutcomeFetchError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeFetchError:
		return "fetch_error"
	default:
		return "not_found"
	}
}

// Result is the outcome of one extraction. Value and Key are set only when
// Outcome is OutcomeFound; Err only when it is OutcomeFetchError.
type Result struct {
	Outcome Outcome
	Value   string
	Key     string
	Err     error
	Cached  bool
}

func Found(value, key string) Result { return Result{Outcome: OutcomeFound, Value: value, Key: key} }

func NotFound() Result { return Result{Outcome: OutcomeNotFound} }

func FetchFailed(err error) Result { return Result{Outcome: OutcomeFetchError, Err: err} }

// maxValueRunes bounds what is accepted as a champion name.
const maxValueRunes = 80

var (
	footnotePattern   = regexp.MustCompile(`\[(?:\d+|[a-z]{1,2}|note \d+)\]`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// CleanCell strips footnote markers such as "[12]" and collapses whitespace.
func CleanCell(s string) string {
	s = footnotePattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// TableSpec locates the season -> champion table on a page.
type TableSpec struct {
	// Selector picks the table; only the first match is read.
	Selector     string
	SeasonColumn int
	NameColumn   int
	// Season selects the row whose season cell equals it. Empty selects the
	// last data row in document order.
	Season string
}

// ParseChampion reads the table described by spec from page. A page without
// the table, or without a matching non-empty row, is NotFound.
func ParseChampion(page []byte, spec TableSpec) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return NotFound()
	}
	table := doc.Find(spec.Selector).First()
	if table.Length() == 0 {
		return NotFound()
	}

	minCells := spec.SeasonColumn
	if spec.NameColumn > minCells {
		minCells = spec.NameColumn
	}
	minCells++

	var season, name string
	matched := false
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if row.Find("td").Length() == 0 {
			// header row
			return true
		}
		cells := row.ChildrenFiltered("th, td")
		if cells.Length() < minCells {
			return true
		}
		rowSeason := CleanCell(cells.Eq(spec.SeasonColumn).Text())
		rowName := CleanCell(cells.Eq(spec.NameColumn).Text())
		if spec.Season == "" {
			season, name, matched = rowSeason, rowName, true
			return true
		}
		if rowSeason == spec.Season {
			season, name, matched = rowSeason, rowName, true
			return false
		}
		return true
	})

	// A row without its season cell (rowspan layouts) cannot say which
	// season the name belongs to.
	if !matched || season == "" || !plausibleValue(name) {
		return NotFound()
	}
	return Found(name, season)
}

func plausibleValue(v string) bool {
	n := utf8.RuneCountInString(v)
	return n > 0 && n <= maxValueRunes
}

// PageFetcher downloads a page body.
type PageFetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// ChampionConfig configures a ChampionExtractor.
type ChampionConfig struct {
	URL      string
	Table    TableSpec
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ChampionExtractor answers "who is the champion" from a reference page,
// caching found values per season key.
type ChampionExtractor struct {
	fetcher PageFetcher
	cfg     ChampionConfig
	cache   *seasonCache
}

func NewChampionExtractor(fetcher PageFetcher, cfg ChampionConfig) *ChampionExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Table.Selector == "" {
		cfg.Table.Selector = "table.wikitable"
	}
	return &ChampionExtractor{
		fetcher: fetcher,
		cfg:     cfg,
		cache:   newSeasonCache(cfg.CacheTTL, time.Now),
	}
}

// ExtractChampion looks up the configured season, or the last row when none
// is configured.
func (e *ChampionExtractor) ExtractChampion(ctx context.Context) Result {
	return e.ExtractSeason(ctx, "")
}

// ExtractSeason looks up the row for season. An empty season falls back to
// the configured policy. It makes at most one outbound request; failures come
// back as a FetchError result, never as a panic or error return.
func (e *ChampionExtractor) ExtractSeason(ctx context.Context, season string) Result {
	spec := e.cfg.Table
	if season != "" {
		spec.Season = season
	}
	key := cacheKey(spec)
	if res, ok := e.cache.get(key); ok {
		res.Cached = true
		return res
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	page, err := e.fetcher.Get(fetchCtx, e.cfg.URL)
	if err != nil {
		return FetchFailed(err)
	}

	res := ParseChampion(page, spec)
	if res.Outcome == OutcomeFound {
		e.cache.put(key, res)
	}
	return res
}

func cacheKey(spec TableSpec) string {
	if spec.Season == "" {
		return "latest"
	}
	return spec.Season
}
