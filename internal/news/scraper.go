package news

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/pitwall/internal/memory"
	"github.com/ent0n29/pitwall/internal/scrape"
)

const maxSummaryRunes = 280

var spaces = regexp.MustCompile(`\s+`)

// Batch is the result of scraping a set of sources once.
type Batch struct {
	Items []memory.NewsItem
	// Failed maps source name to the error that source produced.
	Failed map[string]error
}

// Scraper pulls headlines from HTML listings and RSS feeds.
type Scraper struct {
	fetcher     scrape.PageFetcher
	policy      *bluemonday.Policy
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
}

func NewScraper(fetcher scrape.PageFetcher, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scraper{
		fetcher:     fetcher,
		policy:      bluemonday.StrictPolicy(),
		logger:      logger,
		now:         time.Now,
		concurrency: 4,
	}
}

// Scrape fetches all sources concurrently. A failing source is recorded in
// Batch.Failed and skipped. Items keep source order, then page order, and are
// deduplicated by title and link.
func (s *Scraper) Scrape(ctx context.Context, sources []Source) Batch {
	perSource := make([][]memory.NewsItem, len(sources))
	errs := make([]error, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			items, err := s.scrapeOne(gCtx, src)
			if err != nil {
				s.logger.Warn("news source failed", "source", src.Name, "error", err)
				errs[i] = err
				return nil
			}
			perSource[i] = items
			return nil
		})
	}
	_ = g.Wait()

	now := s.now().UTC()
	batch := Batch{Failed: make(map[string]error)}
	seen := make(map[string]struct{})
	for i, items := range perSource {
		if errs[i] != nil {
			batch.Failed[sources[i].Name] = errs[i]
			continue
		}
		for _, it := range items {
			key := memory.NewsKey(it.Title, it.Link)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			it.Rank = len(batch.Items)
			it.CreatedAt = now
			batch.Items = append(batch.Items, it)
		}
	}
	return batch
}

func (s *Scraper) scrapeOne(ctx context.Context, src Source) ([]memory.NewsItem, error) {
	page, err := s.fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	var items []memory.NewsItem
	switch src.Kind {
	case KindRSS:
		items, err = s.parseFeed(page, src)
	default:
		items, err = s.parseListing(page, src)
	}
	if err != nil {
		return nil, err
	}
	if src.Limit > 0 && len(items) > src.Limit {
		items = items[:src.Limit]
	}
	return items, nil
}

func (s *Scraper) parseListing(page []byte, src Source) ([]memory.NewsItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name, err)
	}
	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse %s url: %w", src.Name, err)
	}

	var items []memory.NewsItem
	doc.Find(src.ItemSelector).Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			href, ok = sel.Find("a[href]").First().Attr("href")
		}
		if !ok {
			return
		}
		link := resolveLink(base, href)
		if link == "" {
			return
		}

		titleSel := sel
		if src.TitleSelector != "" {
			titleSel = sel.Find(src.TitleSelector).First()
		}
		title := s.clean(titleSel.Text())
		if title == "" {
			return
		}
		items = append(items, memory.NewsItem{Title: title, Link: link, Source: src.Name})
	})
	return items, nil
}

func (s *Scraper) parseFeed(page []byte, src Source) ([]memory.NewsItem, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", src.Name, err)
	}
	base, _ := url.Parse(src.URL)

	items := make([]memory.NewsItem, 0, len(feed.Items))
	for _, fi := range feed.Items {
		title := s.clean(fi.Title)
		link := resolveLink(base, fi.Link)
		if title == "" || link == "" {
			continue
		}
		it := memory.NewsItem{
			Title:   title,
			Link:    link,
			Summary: truncateRunes(s.clean(fi.Description), maxSummaryRunes),
			Source:  src.Name,
		}
		if fi.PublishedParsed != nil {
			it.PublishedAt = fi.PublishedParsed.UTC()
		}
		items = append(items, it)
	}
	return items, nil
}

// clean strips markup and entities and collapses whitespace.
func (s *Scraper) clean(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	return strings.TrimSpace(spaces.ReplaceAllString(text, " "))
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
