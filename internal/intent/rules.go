package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultRules is the built-in classification table. Patterns may use the
// {season} placeholder for a year inside the recent-seasons window.
var DefaultRules = []Rule{
	{
		Category: CategoryCurrentChampion,
		Patterns: []string{
			`who.*won.*{season}.*(world championship|\bwdc\b|\bwc\b|drivers'? championship|drivers'? title|world title)`,
			`who.*(is|'s).*(current|latest|reigning).*champion`,
			`\b(current|latest|reigning)\b.*\bchampion\b`,
			`who\s*(is|'s)\s+(the\s+)?(f1\s+|formula (1|one)\s+)?(world\s+|drivers'?\s+)?champion\b`,
			`who\s+won\s+the\s+(f1\s+|formula (1|one)\s+)?(drivers'?|world)\s+(championship|title)`,
			`who.*was.*the.*champion.*(last|previous|most recent) season`,
			`(f1|formula 1|formula one).*champion.*(from|of).*(last|previous) year`,
			`\b{season}\b.*\bchampion`,
			`champion.*\b(in|of)\s+{season}\b`,
		},
		Exclude: []string{`constructor`, `\bwcc\b`, `team.*champion`},
	},
	{
		Category: CategoryLastRaceWinner,
		Patterns: []string{
			`who.*won.*(last|latest|most recent|previous).*(race|grand prix|\bgp\b)`,
			`(latest|most recent|last).*(race|grand prix|\bgp\b).*(winner|won|result)`,
			`(winner|result)s?.*(latest|most recent|last).*(race|grand prix|\bgp\b)`,
		},
	},
	{
		Category: CategoryStandings,
		Patterns: []string{
			`(current|latest).*(standings|leaderboard)`,
			`(standings|leaderboard).*(current|latest|right now)`,
			`season standings for {season}`,
			`\b{season}\b.*(standings|leaderboard)`,
		},
	},
	{
		Category: CategoryUnknown,
		Patterns: []string{
			`who.*won.*{season}.*(constructors'? championship|\bwcc\b)`,
			`(current|latest).*constructors'?.*champion`,
			`\bcurrent\b.*\b(f1|formula 1|champion|winner|race results)\b`,
			`\b{season}\b`,
		},
	},
}

// DefaultRepeatPatterns detect requests that refer back to the conversation.
var DefaultRepeatPatterns = []string{
	`say.*again`,
	`repeat.*that`,
	`what.*did.*you.*say`,
	`\brephrase\b`,
}

type ruleFile struct {
	Rules []struct {
		Category string   `yaml:"category"`
		Patterns []string `yaml:"patterns"`
		Exclude  []string `yaml:"exclude"`
	} `yaml:"rules"`
	Repeat []string `yaml:"repeat"`
}

// LoadRuleFile reads additional rules and repeat phrasings from a YAML file:
//
//	rules:
//	  - category: standings
//	    patterns: ["who leads the (title|championship) fight"]
//	repeat:
//	  - "once more"
func LoadRuleFile(path string) ([]Rule, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read rule file: %w", err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("parse rule file %s: %w", path, err)
	}
	rules := make([]Rule, 0, len(f.Rules))
	for i, r := range f.Rules {
		cat, err := ParseCategory(r.Category)
		if err != nil {
			return nil, nil, fmt.Errorf("rule file %s entry %d: %w", path, i, err)
		}
		if len(r.Patterns) == 0 {
			return nil, nil, fmt.Errorf("rule file %s entry %d: no patterns", path, i)
		}
		rules = append(rules, Rule{Category: cat, Patterns: r.Patterns, Exclude: r.Exclude})
	}
	return rules, f.Repeat, nil
}

// NewWithRuleFile extends the default table with the rules in path.
// An empty path yields the default classifier.
func NewWithRuleFile(path string, currentYear int) (*Classifier, error) {
	if path == "" {
		return NewDefault(currentYear), nil
	}
	extra, repeat, err := LoadRuleFile(path)
	if err != nil {
		return nil, err
	}
	rules := append(append([]Rule(nil), DefaultRules...), extra...)
	phrasings := append(append([]string(nil), DefaultRepeatPatterns...), repeat...)
	return New(rules, phrasings, RecentSeasons(currentYear))
}
