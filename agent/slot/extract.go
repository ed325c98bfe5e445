package slot

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	AnyCuisine      = "any"
	FastFoodCuisine = "Fast Food"

	MinRadiusMeters = 500
	MaxRadiusMeters = 25000
	MaxGroupSize    = 20

	metersPerMile = 1609.344
)

var (
	distancePattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*(minutes|minute|mins|min|hours|hour|hrs|hr|kilometres|kilometers|kilometre|kilometer|kms|km|k|miles|mile|mi|metres|meters|metre|meter|m)?\b`)
	countPattern    = regexp.MustCompile(`([$€£]?)(\d+)\s*(?:(dollars|bucks|usd|aud|eur|gbp)\b)?`)
	indexPattern    = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)?\b`)
)

// Extractor maps utterances to slot values using a Lexicon. It holds no
// mutable state and is safe for concurrent use.
type Extractor struct {
	lex   Lexicon
	whole wordSet
}

func New(lex Lexicon) *Extractor {
	return &Extractor{lex: lex, whole: newWordSet(lex.WholeWords)}
}

type EnergyResult struct {
	Result[int]
	// FastPath is set when an extreme-fatigue phrase matched.
	FastPath bool
}

// Energy checks extreme fatigue first, then a leading 1..5 literal, then the table.
func (e *Extractor) Energy(utterance string) EnergyResult {
	if p, ok := firstPhrase(padded(utterance), e.lex.Fatigue, e.whole); ok {
		return EnergyResult{
			Result:   Result[int]{Value: 1, Matched: true, Pattern: p},
			FastPath: true,
		}
	}
	if n, ok := leadingInt(utterance); ok && n >= 1 && n <= 5 {
		return EnergyResult{Result: Result[int]{Value: n, Matched: true, Pattern: strconv.Itoa(n)}}
	}
	return EnergyResult{Result: e.lex.Energy.match(utterance, e.whole)}
}

// RadiusForEnergy maps an energy level to the default search radius in meters.
func RadiusForEnergy(level int) int {
	switch {
	case level <= 2:
		return 1000
	case level == 3:
		return 3000
	default:
		return 5000
	}
}

func (e *Extractor) Budget(utterance string) Result[int] {
	return e.lex.Budget.match(utterance, e.whole)
}

// GroupSize prefers the first count in [1, MaxGroupSize] over the phrase table.
// Amounts of money are not counts.
func (e *Extractor) GroupSize(utterance string) Result[int] {
	if n, lit, ok := e.firstCount(utterance); ok {
		return Result[int]{Value: n, Matched: true, Pattern: lit}
	}
	return e.lex.Group.match(utterance, e.whole)
}

func (e *Extractor) firstCount(utterance string) (int, string, bool) {
	lower := strings.ToLower(utterance)
	for _, m := range countPattern.FindAllStringSubmatch(lower, -1) {
		if m[1] != "" || m[3] != "" {
			continue
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 || n > MaxGroupSize {
			continue
		}
		return n, m[2], true
	}
	for _, tok := range strings.Fields(Normalize(utterance)) {
		if n, ok := e.lex.Numbers[tok]; ok && n >= 1 && n <= MaxGroupSize {
			return n, tok, true
		}
	}
	return 0, "", false
}

type CuisineResult struct {
	Result[string]
	Known bool
	Skip  bool
}

// Cuisine resolves a known cuisine, then the skip sentinel, then any free-form tag.
// An utterance with nothing left after lead-ins are stripped is unresolved.
func (e *Extractor) Cuisine(utterance string) CuisineResult {
	if name, alias, ok := e.knownCuisine(utterance); ok {
		return CuisineResult{Result: Result[string]{Value: name, Matched: true, Pattern: alias}, Known: true}
	}
	if p, ok := firstPhrase(padded(utterance), e.lex.Cuisine.Skip, e.whole); ok {
		return CuisineResult{Result: Result[string]{Value: e.lex.Cuisine.Any, Matched: true, Pattern: p}, Skip: true}
	}

	tag := e.stripTrailers(e.stripLeadIns(Normalize(utterance)))
	if tag == "" {
		return CuisineResult{Result: Result[string]{Fallback: true}}
	}
	return CuisineResult{Result: Result[string]{Value: titleWords(tag), Matched: true}}
}

// KnownCuisine reports a canonical cuisine named in the utterance, if any.
func (e *Extractor) KnownCuisine(utterance string) (string, bool) {
	name, _, ok := e.knownCuisine(utterance)
	return name, ok
}

func (e *Extractor) knownCuisine(utterance string) (string, string, bool) {
	text := padded(utterance)
	for _, entry := range e.lex.Cuisine.Known {
		if p, ok := firstPhrase(text, entry.Aliases, e.whole); ok {
			return entry.Name, p, true
		}
	}
	return "", "", false
}

func (e *Extractor) stripLeadIns(text string) string {
	for {
		trimmed := false
		for _, lead := range e.lex.Cuisine.LeadIns {
			l := Normalize(lead)
			if l == "" {
				continue
			}
			if text == l {
				return ""
			}
			if strings.HasPrefix(text, l+" ") {
				text = strings.TrimSpace(text[len(l):])
				trimmed = true
			}
		}
		if !trimmed {
			return text
		}
	}
}

// stripTrailers drops politeness and filler words from the end of text.
func (e *Extractor) stripTrailers(text string) string {
	for {
		trimmed := false
		for _, tail := range e.lex.Cuisine.Trailers {
			t := Normalize(tail)
			if t == "" {
				continue
			}
			if text == t {
				return ""
			}
			if strings.HasSuffix(text, " "+t) {
				text = strings.TrimSpace(text[:len(text)-len(t)])
				trimmed = true
			}
		}
		if !trimmed {
			return text
		}
	}
}

type DistanceDecision int

const (
	DistanceUnknown DistanceDecision = iota
	DistanceAccept
	DistanceReject
	DistanceCustom
)

func (d DistanceDecision) String() string {
	switch d {
	case DistanceAccept:
		return "accept"
	case DistanceReject:
		return "reject"
	case DistanceCustom:
		return "custom"
	default:
		return "unknown"
	}
}

type DistanceResult struct {
	Decision DistanceDecision
	Meters   int
	Clamped  bool
}

// Distance reads a radius confirmation. A number wins over accept or reject
// words. Bare numbers are meters; a travel time is not a distance and stays
// unknown.
func (e *Extractor) Distance(utterance string) DistanceResult {
	if m := distancePattern.FindStringSubmatch(strings.ToLower(utterance)); m != nil {
		if isTimeUnit(m[2]) {
			return DistanceResult{Decision: DistanceUnknown}
		}
		v, err := strconv.ParseFloat(numberLiteral(m[1]), 64)
		if err == nil {
			meters := toMeters(v, m[2])
			clamped := ClampRadius(meters)
			return DistanceResult{Decision: DistanceCustom, Meters: clamped, Clamped: clamped != meters}
		}
	}
	text := padded(utterance)
	if _, ok := firstPhrase(text, e.lex.Distance.Reject, e.whole); ok {
		return DistanceResult{Decision: DistanceReject}
	}
	if _, ok := firstPhrase(text, e.lex.Distance.Accept, e.whole); ok {
		return DistanceResult{Decision: DistanceAccept}
	}
	return DistanceResult{Decision: DistanceUnknown}
}

// numberLiteral reads "1,500" as a thousands separator and "2,5" as a decimal comma.
func numberLiteral(s string) string {
	whole, frac, ok := strings.Cut(s, ",")
	if !ok {
		return s
	}
	if len(frac) == 3 {
		return whole + frac
	}
	return whole + "." + frac
}

func isTimeUnit(unit string) bool {
	switch unit {
	case "min", "mins", "minute", "minutes", "hr", "hrs", "hour", "hours":
		return true
	}
	return false
}

func toMeters(v float64, unit string) int {
	switch unit {
	case "km", "kms", "k", "kilometer", "kilometers", "kilometre", "kilometres":
		v *= 1000
	case "mi", "mile", "miles":
		v *= metersPerMile
	}
	return int(math.Round(v))
}

func ClampRadius(meters int) int {
	if meters < MinRadiusMeters {
		return MinRadiusMeters
	}
	if meters > MaxRadiusMeters {
		return MaxRadiusMeters
	}
	return meters
}

// Selection returns a 1-based pick among n options. names, when given, lets
// the user pick by venue name. An affirmative only counts when n == 1.
func (e *Extractor) Selection(utterance string, n int, names []string) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if m := indexPattern.FindStringSubmatch(strings.ToLower(utterance)); m != nil {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > n {
			return 0, false
		}
		return idx, true
	}

	text := padded(utterance)
	for _, tok := range strings.Fields(text) {
		if idx, ok := e.lex.Selection.Ordinals[tok]; ok {
			if idx < 0 {
				idx = n + 1 + idx
			}
			if idx >= 1 && idx <= n {
				return idx, true
			}
			return 0, false
		}
	}
	for i, name := range names {
		if i >= n {
			break
		}
		if containsPhrase(text, name, e.whole) {
			return i + 1, true
		}
	}
	if n == 1 {
		if _, ok := firstPhrase(text, e.lex.Selection.Affirmative, e.whole); ok {
			return 1, true
		}
	}
	return 0, false
}

// IsCorrection reports an explicit change-of-mind marker.
func (e *Extractor) IsCorrection(utterance string) bool {
	_, ok := firstPhrase(padded(utterance), e.lex.Corrections, e.whole)
	return ok
}

func leadingInt(utterance string) (int, bool) {
	fields := strings.Fields(Normalize(utterance))
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
