// Package content scores outgoing messages for spam risk against a weighted
// dictionary and a handful of text heuristics.
package content

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/customeros/mailgovernor/dto"
	"github.com/customeros/mailgovernor/internal/enum"
	"github.com/customeros/mailgovernor/internal/models"
)

const dictionaryMultiplier = 4

// Heuristic trigger names, in the order they are reported.
const (
	TriggerExcessiveCaps    = "excessive_capitals"
	TriggerShoutingWords    = "all_caps_words"
	TriggerExclamations     = "excessive_exclamation"
	TriggerCurrencySymbols  = "currency_symbols"
	TriggerTooManyLinks     = "too_many_links"
	TriggerImageHeavy       = "image_heavy"
	TriggerUnsafeMarkup     = "script_or_form"
	dictionaryTriggerPrefix = "spam_word:"
)

// categoryWeights scale dictionary scores. Unknown categories weigh 1.
var categoryWeights = map[string]float64{
	"phishing": 1.5,
	"adult":    2,
}

func categoryWeight(category string) float64 {
	if w, ok := categoryWeights[strings.ToLower(category)]; ok {
		return w
	}
	return 1
}

// an image counts as this many words of text when weighing image-heavy mail
const wordsPerImage = 50

// Analyze scores a message. It never touches storage or the network, and the
// same input and dictionary always give the same result.
func Analyze(input dto.ContentInput, words []models.SpamWord) dto.ContentAnalysisResult {
	body := input.Body
	if input.HTML != "" {
		body = input.HTML
	}
	ex := extract(body)
	text := strings.TrimSpace(input.Subject + "\n" + ex.text)

	tokens := tokenize(text)
	stats := dto.ContentStats{
		Words:  len(tokens),
		Links:  ex.links,
		Images: ex.images,
	}

	var triggers []string
	dictionary, hits := matchDictionary(tokens, words)
	stats.DictionaryHits = len(hits)
	for _, w := range hits {
		triggers = append(triggers, dictionaryTriggerPrefix+w)
	}

	heuristics := 0
	fire := func(name string, points int) {
		if points <= 0 {
			return
		}
		heuristics += points
		triggers = append(triggers, name)
	}

	letters, upper := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	stats.Letters = letters
	if letters > 0 {
		stats.CapsRatio = round2(float64(upper) / float64(letters))
	}
	if letters >= 10 && float64(upper)/float64(letters) > 0.30 {
		fire(TriggerExcessiveCaps, 10)
	}

	fire(TriggerShoutingWords, min(15, 5*shoutingWords(text)))

	stats.Exclamations = strings.Count(text, "!")
	if stats.Exclamations > 3 || strings.Contains(text, "!!") {
		fire(TriggerExclamations, 10)
	}
	if strings.Count(text, "$") > 2 {
		fire(TriggerCurrencySymbols, 5)
	}
	if stats.Links > 3 {
		fire(TriggerTooManyLinks, min(10, 2*(stats.Links-3)))
	}
	if stats.Images > 0 {
		imageWeight := float64(stats.Images * wordsPerImage)
		if imageWeight/(imageWeight+float64(stats.Words)) > 0.5 {
			fire(TriggerImageHeavy, 10)
		}
	}
	if ex.unsafe {
		fire(TriggerUnsafeMarkup, 15)
	}

	risk := int(math.Round(dictionary*dictionaryMultiplier)) + heuristics
	if risk > 100 {
		risk = 100
	}
	if triggers == nil {
		triggers = []string{}
	}
	return dto.ContentAnalysisResult{
		Score:                100 - risk,
		SpamRisk:             risk,
		DeliverabilityRating: RatingFor(risk),
		Triggers:             triggers,
		Suggestions:          suggestionsFor(hits, triggers),
		Stats:                stats,
	}
}

// RatingFor maps a spam risk to its band.
func RatingFor(risk int) enum.DeliverabilityRating {
	switch {
	case risk <= 10:
		return enum.RatingExcellent
	case risk <= 25:
		return enum.RatingGood
	case risk <= 40:
		return enum.RatingFair
	case risk <= 60:
		return enum.RatingPoor
	default:
		return enum.RatingCritical
	}
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchDictionary returns the weighted score of every active entry found at
// least once, and the matched words sorted. Phrases match as consecutive tokens.
func matchDictionary(tokens []string, words []models.SpamWord) (float64, []string) {
	index := make(map[string][]int, len(tokens))
	for i, t := range tokens {
		index[t] = append(index[t], i)
	}

	total := 0.0
	seen := map[string]bool{}
	var hits []string
	for _, w := range words {
		if !w.Active {
			continue
		}
		phrase := tokenize(w.Word)
		key := strings.Join(phrase, " ")
		if len(phrase) == 0 || seen[key] {
			continue
		}
		if containsPhrase(tokens, index, phrase) {
			seen[key] = true
			total += float64(w.Score) * categoryWeight(w.Category)
			hits = append(hits, key)
		}
	}
	sort.Strings(hits)
	return total, hits
}

func containsPhrase(tokens []string, index map[string][]int, phrase []string) bool {
	for _, start := range index[phrase[0]] {
		if start+len(phrase) > len(tokens) {
			continue
		}
		match := true
		for j := 1; j < len(phrase); j++ {
			if tokens[start+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// shoutingWords counts words of four or more letters written entirely in capitals.
func shoutingWords(text string) int {
	n := 0
	for _, word := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
		if len([]rune(word)) >= 4 && strings.ToUpper(word) == word && strings.ToLower(word) != word {
			n++
		}
	}
	return n
}

func suggestionsFor(hits, triggers []string) []string {
	suggestions := []string{}
	if len(hits) > 0 {
		suggestions = append(suggestions, fmt.Sprintf("Rephrase or remove spam trigger words: %s", strings.Join(hits, ", ")))
	}
	for _, t := range triggers {
		switch t {
		case TriggerExcessiveCaps, TriggerShoutingWords:
			if !slices.Contains(suggestions, capsSuggestion) {
				suggestions = append(suggestions, capsSuggestion)
			}
		case TriggerExclamations:
			suggestions = append(suggestions, "Use at most one exclamation mark")
		case TriggerCurrencySymbols:
			suggestions = append(suggestions, "Avoid repeated currency symbols")
		case TriggerTooManyLinks:
			suggestions = append(suggestions, "Keep the number of links to three or fewer")
		case TriggerImageHeavy:
			suggestions = append(suggestions, "Add more text relative to images")
		case TriggerUnsafeMarkup:
			suggestions = append(suggestions, "Remove scripts and forms, most mailbox providers strip or flag them")
		}
	}
	return suggestions
}

const capsSuggestion = "Write in sentence case instead of capitals"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
