package intent

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyCategories(t *testing.T) {
	c := NewDefault(2026)

	cases := []struct {
		msg          string
		wantCategory Category
		wantHistory  bool
	}{
		{"who is the current f1 world champion", CategoryCurrentChampion, false},
		{"Who is the CURRENT F1 World Champion?", CategoryCurrentChampion, false},
		{"who's the reigning champion", CategoryCurrentChampion, false},
		{"who won the 2024 drivers' championship", CategoryCurrentChampion, false},
		{"who won the 2024 drivers’ championship", CategoryCurrentChampion, false},
		{"2025 champion", CategoryCurrentChampion, false},
		{"who was the world champion in 2025", CategoryCurrentChampion, false},
		{"who won the 2055 world championship", CategoryCurrentChampion, false},
		{"who was the champion last season", CategoryCurrentChampion, false},
		{"current champion?", CategoryCurrentChampion, false},
		{"latest champion", CategoryCurrentChampion, false},
		{"who is the world champion", CategoryCurrentChampion, false},
		{"who is the f1 champion", CategoryCurrentChampion, false},
		{"who's the F1 world champion?", CategoryCurrentChampion, false},
		{"who won the drivers' championship", CategoryCurrentChampion, false},
		{"Who won the world title?", CategoryCurrentChampion, false},
		{"who won the last race", CategoryLastRaceWinner, false},
		{"who won the most recent grand prix?", CategoryLastRaceWinner, false},
		{"latest race results", CategoryLastRaceWinner, false},
		{"what are the latest standings", CategoryStandings, false},
		{"show me the current leaderboard", CategoryStandings, false},
		{"season standings for 2025", CategoryStandings, false},
		{"who is the current constructors champion", CategoryUnknown, false},
		{"who won the 2025 constructors' championship", CategoryUnknown, false},
		{"latest constructors champion", CategoryUnknown, false},
		{"tell me about the 2030 season", CategoryUnknown, false},
		{"who won the most recent race and who is the current champion", CategoryCurrentChampion, false},
		{"who is the current world champion? say that again", CategoryCurrentChampion, true},
	}
	for _, tc := range cases {
		t.Run(tc.msg, func(t *testing.T) {
			got := c.Classify(tc.msg)
			if got.Category != tc.wantCategory {
				t.Fatalf("Classify(%q).Category = %s, want %s", tc.msg, got.Category, tc.wantCategory)
			}
			if got.NeedsHistory != tc.wantHistory {
				t.Fatalf("Classify(%q).NeedsHistory = %v, want %v", tc.msg, got.NeedsHistory, tc.wantHistory)
			}
			if !got.NeedsLiveFact() {
				t.Fatalf("Classify(%q).NeedsLiveFact() = false, want true", tc.msg)
			}
		})
	}
}

func TestClassifyPlainQueries(t *testing.T) {
	c := NewDefault(2026)

	for _, msg := range []string{
		"what tires does a modern F1 car use",
		"explain DRS to me",
		"who won the 2010 world championship",
		"who won the 2056 world championship",
		"",
		"   ",
	} {
		got := c.Classify(msg)
		if !got.IsPlain() {
			t.Fatalf("Classify(%q) = %+v, want plain query", msg, got)
		}
	}
}

func TestClassifyRepeatRequests(t *testing.T) {
	c := NewDefault(2026)

	for _, msg := range []string{
		"say that again",
		"Can you repeat that?",
		"what did you say",
		"can you rephrase",
		"please rephrase it",
	} {
		got := c.Classify(msg)
		if !got.NeedsHistory {
			t.Fatalf("Classify(%q).NeedsHistory = false, want true", msg)
		}
		if got.Category != CategoryNone {
			t.Fatalf("Classify(%q).Category = %s, want plain", msg, got.Category)
		}
	}
}

func TestClassifyCapturesSeason(t *testing.T) {
	c := NewDefault(2026)

	cases := map[string]string{
		"who won the 2024 drivers' championship": "2024",
		"2025 champion":                          "2025",
		"who is the current champion":            "",
		"who won the 2010 world championship":    "",
	}
	for msg, want := range cases {
		if got := c.Classify(msg).Season; got != want {
			t.Fatalf("Classify(%q).Season = %q, want %q", msg, got, want)
		}
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := NewDefault(2026)
	for _, msg := range []string{"who is the current f1 world champion", "say that again", "what tires does a modern F1 car use"} {
		first := c.Classify(msg)
		second := c.Classify(msg)
		if first != second {
			t.Fatalf("Classify(%q) not stable: %+v then %+v", msg, first, second)
		}
	}
}

func TestSeasonWindowIsHalfOpen(t *testing.T) {
	w := RecentSeasons(2026)
	if !w.Contains(2024) {
		t.Fatalf("Contains(2024) = false, want true")
	}
	if w.Contains(2023) {
		t.Fatalf("Contains(2023) = true, want false")
	}
	if !w.Contains(2055) {
		t.Fatalf("Contains(2055) = false, want true")
	}
	if w.Contains(2056) {
		t.Fatalf("Contains(2056) = true, want false")
	}
}

func TestNewRejectsBadRules(t *testing.T) {
	cases := []struct {
		name  string
		rules []Rule
	}{
		{"missing category", []Rule{{Patterns: []string{"x"}}}},
		{"bad regexp", []Rule{{Category: CategoryStandings, Patterns: []string{"("}}}},
		{"two placeholders", []Rule{{Category: CategoryStandings, Patterns: []string{"{season} vs {season}"}}}},
		{"bad exclude", []Rule{{Category: CategoryStandings, Patterns: []string{"x"}, Exclude: []string{"["}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.rules, nil, RecentSeasons(2026)); err == nil {
				t.Fatalf("New() expected error")
			}
		})
	}
}

func TestNewWithRuleFileAddsRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte(`rules:
  - category: standings
    patterns: ["who leads the (title|championship) fight"]
repeat:
  - "once more"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write rule file: %v", err)
	}

	c, err := NewWithRuleFile(path, 2026)
	if err != nil {
		t.Fatalf("NewWithRuleFile() error = %v", err)
	}
	if got := c.Classify("who leads the championship fight"); got.Category != CategoryStandings {
		t.Fatalf("Category = %s, want standings", got.Category)
	}
	if got := c.Classify("once more please"); !got.NeedsHistory {
		t.Fatalf("NeedsHistory = false, want true")
	}
	if got := c.Classify("who is the current f1 world champion"); got.Category != CategoryCurrentChampion {
		t.Fatalf("default rules lost: Category = %s", got.Category)
	}
}

func TestLoadRuleFileRejectsUnknownCategory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - category: weather\n    patterns: [\"rain\"]\n"), 0o600); err != nil {
		t.Fatalf("write rule file: %v", err)
	}
	if _, _, err := LoadRuleFile(path); err == nil {
		t.Fatalf("LoadRuleFile() expected error for unknown category")
	}
}
