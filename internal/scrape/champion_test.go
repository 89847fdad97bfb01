package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type fakePageFetcher struct {
	body  string
	err   error
	calls int
}

func (f *fakePageFetcher) Get(context.Context, string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

const twoRowTable = `<table class="wikitable">
<tr><th>Season</th><th>Champion</th></tr>
<tr><td>2023</td><td>A</td></tr>
<tr><td>2024</td><td>B</td></tr>
</table>`

func TestParseChampion(t *testing.T) {
	page := loadFixture(t, "testdata/champions.html")

	tests := []struct {
		name string
		page string
		spec TableSpec
		want Result
	}{
		{
			name: "season key match",
			page: twoRowTable,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1, Season: "2024"},
			want: Found("B", "2024"),
		},
		{
			name: "last row without season filter",
			page: twoRowTable,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1},
			want: Found("B", "2024"),
		},
		{
			name: "footnotes stripped from name and season",
			page: page,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1, Season: "2024"},
			want: Found("Max Verstappen", "2024"),
		},
		{
			name: "whitespace collapsed",
			page: page,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1, Season: "2023"},
			want: Found("Max Verstappen", "2023"),
		},
		{
			name: "last row reads only the first table",
			page: page,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1},
			want: Found("Lando Norris", "2025"),
		},
		{
			name: "season missing",
			page: twoRowTable,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1, Season: "2030"},
			want: NotFound(),
		},
		{
			name: "empty page",
			page: "",
			spec: TableSpec{Selector: "table.wikitable", NameColumn: 1},
			want: NotFound(),
		},
		{
			name: "malformed markup",
			page: "<html><body><div><tr><td>2024<td>",
			spec: TableSpec{Selector: "table.wikitable", NameColumn: 1, Season: "2024"},
			want: NotFound(),
		},
		{
			name: "empty champion cell after stripping",
			page: `<table class="wikitable"><tr><td>2024</td><td>[3]</td></tr></table>`,
			spec: TableSpec{Selector: "table.wikitable", NameColumn: 1, Season: "2024"},
			want: NotFound(),
		},
		{
			name: "last row with empty season cell",
			page: `<table class="wikitable">
<tr><th>Season</th><th>Champion</th></tr>
<tr><td>2024</td><td>B</td></tr>
<tr><td> </td><td>C</td></tr>
</table>`,
			spec: TableSpec{Selector: "table.wikitable", SeasonColumn: 0, NameColumn: 1},
			want: NotFound(),
		},
		{
			name: "row too short for name column",
			page: `<table class="wikitable"><tr><td>2024</td></tr></table>`,
			spec: TableSpec{Selector: "table.wikitable", NameColumn: 1},
			want: NotFound(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseChampion([]byte(tt.page), tt.spec)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateErrors()); diff != "" {
				t.Fatalf("ParseChampion() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	cases := map[string]string{
		"Max Verstappen[1]":        "Max Verstappen",
		" Lewis\n\tHamilton [23] ": "Lewis Hamilton",
		"2021[note 4]":             "2021",
		"[7]":                      "",
	}
	for in, want := range cases {
		if got := CleanCell(in); got != want {
			t.Fatalf("CleanCell(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractChampionFetchError(t *testing.T) {
	boom := errors.New("connection refused")
	f := &fakePageFetcher{err: boom}
	e := NewChampionExtractor(f, ChampionConfig{URL: "https://example.test", Table: TableSpec{NameColumn: 1}})

	res := e.ExtractChampion(context.Background())
	if res.Outcome != OutcomeFetchError {
		t.Fatalf("Outcome = %s, want fetch_error", res.Outcome)
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("Err = %v, want %v", res.Err, boom)
	}
}

func TestExtractChampionNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewChampionExtractor(NewFetcher(srv.Client()), ChampionConfig{URL: srv.URL, Table: TableSpec{NameColumn: 1}})
	res := e.ExtractChampion(context.Background())
	if res.Outcome != OutcomeFetchError {
		t.Fatalf("Outcome = %s, want fetch_error", res.Outcome)
	}
	var statusErr *StatusError
	if !errors.As(res.Err, &statusErr) || statusErr.Code != http.StatusServiceUnavailable {
		t.Fatalf("Err = %v, want StatusError 503", res.Err)
	}
}

func TestExtractChampionTimeoutIsFetchError(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	e := NewChampionExtractor(NewFetcher(srv.Client()), ChampionConfig{
		URL:     srv.URL,
		Table:   TableSpec{NameColumn: 1},
		Timeout: 50 * time.Millisecond,
	})
	res := e.ExtractChampion(context.Background())
	if res.Outcome != OutcomeFetchError {
		t.Fatalf("Outcome = %s, want fetch_error", res.Outcome)
	}
}

func TestExtractChampionOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing User-Agent header")
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(twoRowTable))
	}))
	defer srv.Close()

	e := NewChampionExtractor(NewFetcher(srv.Client()), ChampionConfig{
		URL:   srv.URL,
		Table: TableSpec{NameColumn: 1, Season: "2023"},
	})
	res := e.ExtractChampion(context.Background())
	if diff := cmp.Diff(Found("A", "2023"), res); diff != "" {
		t.Fatalf("ExtractChampion() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractChampionCachesFoundResults(t *testing.T) {
	f := &fakePageFetcher{body: twoRowTable}
	e := NewChampionExtractor(f, ChampionConfig{
		URL:      "https://example.test",
		Table:    TableSpec{NameColumn: 1, Season: "2024"},
		CacheTTL: time.Hour,
	})
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	e.cache = newSeasonCache(time.Hour, func() time.Time { return now })

	first := e.ExtractChampion(context.Background())
	second := e.ExtractChampion(context.Background())
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", f.calls)
	}
	if first.Cached || !second.Cached {
		t.Fatalf("Cached flags = %v/%v, want false/true", first.Cached, second.Cached)
	}
	if second.Value != "B" || second.Key != "2024" {
		t.Fatalf("cached result = %+v", second)
	}

	now = now.Add(time.Hour)
	_ = e.ExtractChampion(context.Background())
	if f.calls != 2 {
		t.Fatalf("fetch calls after expiry = %d, want 2", f.calls)
	}
}

func TestExtractSeasonOverridesConfiguredPolicy(t *testing.T) {
	f := &fakePageFetcher{body: twoRowTable}
	e := NewChampionExtractor(f, ChampionConfig{
		URL:      "https://example.test",
		Table:    TableSpec{NameColumn: 1},
		CacheTTL: time.Hour,
	})

	if diff := cmp.Diff(Found("A", "2023"), e.ExtractSeason(context.Background(), "2023")); diff != "" {
		t.Fatalf("ExtractSeason(2023) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Found("B", "2024"), e.ExtractSeason(context.Background(), "")); diff != "" {
		t.Fatalf("ExtractSeason(\"\") mismatch (-want +got):\n%s", diff)
	}
	if res := e.ExtractSeason(context.Background(), "2030"); res.Outcome != OutcomeNotFound {
		t.Fatalf("ExtractSeason(2030).Outcome = %s, want not_found", res.Outcome)
	}
	// Seasons are cached under their own keys.
	if res := e.ExtractSeason(context.Background(), "2023"); !res.Cached || res.Value != "A" {
		t.Fatalf("second ExtractSeason(2023) = %+v, want cached A", res)
	}
	if f.calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", f.calls)
	}
}

func TestExtractChampionDoesNotCacheMisses(t *testing.T) {
	f := &fakePageFetcher{body: "<html></html>"}
	e := NewChampionExtractor(f, ChampionConfig{
		URL:      "https://example.test",
		Table:    TableSpec{NameColumn: 1},
		CacheTTL: time.Hour,
	})

	for i := 0; i < 2; i++ {
		if res := e.ExtractChampion(context.Background()); res.Outcome != OutcomeNotFound {
			t.Fatalf("Outcome = %s, want not_found", res.Outcome)
		}
	}
	if f.calls != 2 {
		t.Fatalf("fetch calls = %d, want 2", f.calls)
	}
}
