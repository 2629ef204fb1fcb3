// Package clinic answers facility-search chat turns ("find a pharmacy in Austin") with
// nearby places from the Google Geocoding and Places Nearby Search APIs.
package clinic

import (
	"slices"
	"strings"
	"unicode"
)

// Kind is the facility type searched for
type Kind string

const (
	KindHospital Kind = "hospital"
	KindDoctor   Kind = "doctor"
	KindPharmacy Kind = "pharmacy"
	KindDentist  Kind = "dentist"
)

// Request is a detected facility search
type Request struct {
	Kind Kind
	// Location is the place named in the query; empty when none was given
	Location string
	// NearMe is set for "near me" style queries, which carry no usable location
	NearMe bool
}

var facilityKeywords = []string{
	"clinic", "hospital", "doctor", "physician", "medical center", "urgent care",
	"emergency room", "pharmac", "drugstore", "drug store", "dentist", "dental",
	"medical facility", "healthcare provider", "medical practice", "specialist",
	"health center", "walk-in", "family doctor", "general practitioner",
	"medical office", "healthcare facility", "treatment center",
}

var nearMePhrases = []string{"near me", "nearby", "close to me", "in my area", "around me"}

var searchIntent = []string{"find", "where", "nearest", "closest", "locate", "search", "looking for", "recommend"}

var locationPrepositions = []string{"in", "near", "around", "at"}

// stopWords end a location phrase. Time and date words are included so "at night"
// and "in January" are not taken as places.
var stopWords = []string{
	"me", "my", "area", "the", "a", "an", "for", "with", "that", "which", "who",
	"night", "tonight", "morning", "afternoon", "evening", "noon", "midnight", "once", "least",
	"today", "tomorrow", "yesterday", "weekend", "weekends", "time", "times",
	"minute", "minutes", "hour", "hours", "day", "days", "week", "weeks", "month", "months", "year", "years",
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"january", "february", "march", "april", "june", "july", "august",
	"september", "october", "november", "december",
}

// maxLocationWords bounds how many words after a preposition form the location
const maxLocationWords = 3

// Detect reports whether query asks for nearby facilities. A facility keyword alone is
// not enough: the query must also name a location, say "near me", or ask to find one,
// so "should I see a doctor about my fever" still goes to the generator.
func Detect(query string) (Request, bool) {
	lower := strings.ToLower(query)
	words := strings.Fields(query)

	hasFacility := slices.ContainsFunc(facilityKeywords, func(k string) bool { return strings.Contains(lower, k) }) ||
		hasWord(words, "gp")
	if !hasFacility {
		return Request{}, false
	}

	req := Request{Kind: classify(lower)}
	if slices.ContainsFunc(nearMePhrases, func(p string) bool { return strings.Contains(lower, p) }) {
		req.NearMe = true
		return req, true
	}

	req.Location = extractLocation(words)
	if req.Location != "" {
		return req, true
	}
	if slices.ContainsFunc(searchIntent, func(p string) bool { return strings.Contains(lower, p) }) {
		return req, true
	}
	return Request{}, false
}

func classify(lower string) Kind {
	switch {
	case strings.Contains(lower, "pharmac") || strings.Contains(lower, "drugstore") || strings.Contains(lower, "drug store"):
		return KindPharmacy
	case strings.Contains(lower, "dentist") || strings.Contains(lower, "dental") || strings.Contains(lower, "orthodontist"):
		return KindDentist
	case strings.Contains(lower, "urgent care") || strings.Contains(lower, "walk-in") || strings.Contains(lower, "emergency"):
		return KindHospital
	case strings.Contains(lower, "doctor") || strings.Contains(lower, "physician") || strings.Contains(lower, "general practitioner") ||
		strings.Contains(lower, "specialist") || hasWord(strings.Fields(lower), "gp"):
		return KindDoctor
	default:
		return KindHospital
	}
}

func extractLocation(words []string) string {
	for i, w := range words {
		if !slices.Contains(locationPrepositions, trimPunct(strings.ToLower(w))) {
			continue
		}
		var loc []string
		for j := i + 1; j < len(words) && j <= i+maxLocationWords; j++ {
			next := trimPunct(words[j])
			if next == "" || slices.Contains(stopWords, strings.ToLower(next)) {
				break
			}
			loc = append(loc, next)
			if strings.ContainsAny(words[j], ".!?") {
				break
			}
		}
		if len(loc) > 0 {
			return strings.Join(loc, " ")
		}
	}

	// "Austin TX": a word followed by an upper-case two-letter state code
	for i := 0; i+1 < len(words); i++ {
		state := trimPunct(words[i+1])
		if len(state) == 2 && isUpperAlpha(state) {
			return trimPunct(words[i]) + " " + state
		}
	}
	return ""
}

func trimPunct(s string) string {
	return strings.TrimRight(strings.TrimLeft(s, "\"'("), ".,!?;:\"')")
}

func hasWord(words []string, target string) bool {
	return slices.ContainsFunc(words, func(w string) bool { return strings.EqualFold(trimPunct(w), target) })
}

func isUpperAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsUpper(r) || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
