package slot

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var lexiconRaw []byte

type Lexicon struct {
	Fatigue     []string         `yaml:"fatigue"`
	Energy      Table[int]       `yaml:"energy"`
	Budget      Table[int]       `yaml:"budget"`
	Group       Table[int]       `yaml:"group"`
	Numbers     map[string]int   `yaml:"numbers"`
	Cuisine     CuisineLexicon   `yaml:"cuisine"`
	Distance    DistanceLexicon  `yaml:"distance"`
	Selection   SelectionLexicon `yaml:"selection"`
	Corrections []string         `yaml:"corrections"`
	// WholeWords are phrases that would over-match as a word prefix.
	WholeWords []string `yaml:"whole_words"`
}

type CuisineLexicon struct {
	Any      string         `yaml:"any"`
	Skip     []string       `yaml:"skip"`
	LeadIns  []string       `yaml:"lead_ins"`
	Trailers []string       `yaml:"trailers"`
	Known    []CuisineEntry `yaml:"known"`
}

type CuisineEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type DistanceLexicon struct {
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`
}

type SelectionLexicon struct {
	Affirmative []string       `yaml:"affirmative"`
	Ordinals    map[string]int `yaml:"ordinals"`
}

// ParseLexicon decodes and sanity-checks a YAML lexicon.
func ParseLexicon(raw []byte) (Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(raw, &lex); err != nil {
		return Lexicon{}, fmt.Errorf("decode lexicon: %w", err)
	}
	if len(lex.Energy.Rules) == 0 || len(lex.Budget.Rules) == 0 || len(lex.Group.Rules) == 0 {
		return Lexicon{}, fmt.Errorf("lexicon: energy, budget and group tables are required")
	}
	if lex.Cuisine.Any == "" {
		lex.Cuisine.Any = AnyCuisine
	}
	return lex, nil
}

var (
	defaultOnce      sync.Once
	defaultExtractor *Extractor
)

// Default returns the extractor built from the embedded lexicon.
func Default() *Extractor {
	defaultOnce.Do(func() {
		lex, err := ParseLexicon(lexiconRaw)
		if err != nil {
			panic(err)
		}
		defaultExtractor = New(lex)
	})
	return defaultExtractor
}
