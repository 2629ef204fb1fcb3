// Package filter implements the two-stage admission policy for chat turns. PreCheck is a
// cheap keyword gate run before generation; PostCheck inspects the generated answer for
// refusal and out-of-scope markers and is the authoritative stage.
//
// Queries containing any health term are admitted even when they also carry off-domain
// terms. That looseness is intentional: PostCheck is the backstop.
package filter

import "strings"

// RefusalMessage replaces any answer rejected by either stage
const RefusalMessage = "Sorry, I can only assist with healthcare-related queries."

// Reason tags which stage, if any, rejected a turn
type Reason string

const (
	ReasonOK           Reason = "ok"
	ReasonKeywordMiss  Reason = "keyword_miss"
	ReasonPolicyReject Reason = "policy_reject"
)

// Stage names used in metrics labels
const (
	StagePre  = "pre"
	StagePost = "post"
)

// Decision is the outcome of one admission stage
type Decision struct {
	Allowed bool
	Reason  Reason
	// Matched lists the health terms (pre) or markers (post) that drove the decision
	Matched []string
	// OffDomain lists off-domain terms seen by PreCheck. Never affects Allowed.
	OffDomain []string
}

// Filter holds the compiled term lists. It is immutable and safe for concurrent use.
type Filter struct {
	health    []string
	offDomain []string
	markers   []string
}

// New builds a Filter over the built-in term lists
func New() *Filter {
	markers := make([]string, 0, len(refusalMarkers)+len(outOfScopeMarkers))
	markers = append(markers, refusalMarkers...)
	markers = append(markers, outOfScopeMarkers...)
	return &Filter{
		health:    compile(healthTerms),
		offDomain: compile(offDomainTerms),
		markers:   markers,
	}
}

func compile(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// PreCheck admits a query when any health term occurs in it as a substring, so
// "flu" admits "influenza" and "eye" admits "eyes".
func (f *Filter) PreCheck(query string) Decision {
	lower := strings.ToLower(strings.TrimSpace(query))
	if lower == "" {
		return Decision{Reason: ReasonKeywordMiss}
	}

	d := Decision{
		Matched:   matchTerms(f.health, lower),
		OffDomain: matchTerms(f.offDomain, lower),
	}
	if len(d.Matched) == 0 {
		d.Reason = ReasonKeywordMiss
		return d
	}
	d.Allowed = true
	d.Reason = ReasonOK
	return d
}

// PostCheck rejects an empty answer or one carrying a refusal or out-of-scope marker
func (f *Filter) PostCheck(answer string) Decision {
	norm := normalize(answer)
	if strings.TrimSpace(norm) == "" {
		return Decision{Reason: ReasonPolicyReject}
	}
	for _, m := range f.markers {
		if strings.Contains(norm, m) {
			return Decision{Reason: ReasonPolicyReject, Matched: []string{m}}
		}
	}
	return Decision{Allowed: true, Reason: ReasonOK}
}

func matchTerms(terms []string, text string) []string {
	var matched []string
	for _, t := range terms {
		if strings.Contains(text, t) {
			matched = append(matched, t)
		}
	}
	return matched
}

// normalize lower-cases s and drops apostrophes so "can't", "can’t" and "cant" compare equal
func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("'", "", "’", "").Replace(s)
}
