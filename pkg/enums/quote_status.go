package enums

import (
	"slices"
	"strings"
)

// QuoteStatus is the canonical lifecycle state of a quote.
type QuoteStatus string

const (
	QuoteStatusPending    QuoteStatus = "pending"
	QuoteStatusSent       QuoteStatus = "sent"
	QuoteStatusApproved   QuoteStatus = "approved"
	QuoteStatusAuthorized QuoteStatus = "authorized"
	QuoteStatusCompleted  QuoteStatus = "completed"
	QuoteStatusRejected   QuoteStatus = "rejected"
)

var quoteStatuses = closedSet[QuoteStatus]{
	QuoteStatusPending,
	QuoteStatusSent,
	QuoteStatusApproved,
	QuoteStatusAuthorized,
	QuoteStatusCompleted,
	QuoteStatusRejected,
}

// quoteTransitions lists every legal forward move. Anything absent is illegal.
var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusPending:    {QuoteStatusSent, QuoteStatusApproved, QuoteStatusAuthorized, QuoteStatusRejected},
	QuoteStatusSent:       {QuoteStatusApproved, QuoteStatusRejected},
	QuoteStatusApproved:   {QuoteStatusAuthorized, QuoteStatusRejected},
	QuoteStatusAuthorized: {QuoteStatusCompleted},
}

var quoteStatusLabels = map[QuoteStatus]string{
	QuoteStatusPending:    "Pending",
	QuoteStatusSent:       "Sent",
	QuoteStatusApproved:   "Approved",
	QuoteStatusAuthorized: "Authorized",
	QuoteStatusCompleted:  "Dispatched",
	QuoteStatusRejected:   "Rejected",
}

// legacy synonyms accepted from older clients and exports.
var quoteStatusSynonyms = map[string]QuoteStatus{
	"authorised": QuoteStatusAuthorized,
	"dispatched": QuoteStatusCompleted,
}

// String implements fmt.Stringer.
func (s QuoteStatus) String() string {
	return string(s)
}

func (s QuoteStatus) IsValid() bool { return quoteStatuses.has(s) }

// IsTerminal reports whether no transition leaves the state.
func (s QuoteStatus) IsTerminal() bool {
	return s.IsValid() && len(quoteTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is a legal forward step.
func (s QuoteStatus) CanTransitionTo(next QuoteStatus) bool {
	return slices.Contains(quoteTransitions[s], next)
}

// SourcesFor returns every state that may move into target.
func SourcesFor(target QuoteStatus) []QuoteStatus {
	sources := make([]QuoteStatus, 0, 2)
	for _, from := range quoteStatuses {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Label is the human-facing name shown by the storefront and documents.
func (s QuoteStatus) Label() string {
	if label, ok := quoteStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

func ParseQuoteStatus(value string) (QuoteStatus, error) {
	return quoteStatuses.parse("quote status", value)
}

// ParseQuoteStatusLabel accepts canonical values, display labels and legacy
// synonyms, always returning the canonical state.
func ParseQuoteStatusLabel(value string) (QuoteStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if status, ok := quoteStatusSynonyms[normalized]; ok {
		return status, nil
	}
	for status, label := range quoteStatusLabels {
		if strings.ToLower(label) == normalized {
			return status, nil
		}
	}
	return ParseQuoteStatus(normalized)
}
