package retrieval

import (
	"regexp"
	"strings"
)

// IntentClassifier decides whether a question is a generic "tell me about
// this" style query rather than a specific one. The lexicon and matching
// rules are product policy, so the classifier is pluggable.
type IntentClassifier interface {
	IsGeneric(question string) bool
}

// LexiconClassifier matches a question against a fixed phrase list by
// exact match, prefix, or substring, after lowercasing and trimming.
type LexiconClassifier struct {
	phrases []string
}

var _ IntentClassifier = (*LexiconClassifier)(nil)

func NewLexiconClassifier(phrases []string) *LexiconClassifier {
	normalized := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			normalized = append(normalized, p)
		}
	}
	return &LexiconClassifier{phrases: normalized}
}

func (c *LexiconClassifier) IsGeneric(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return false
	}
	for _, p := range c.phrases {
		if q == p || strings.HasPrefix(q, p) || strings.Contains(q, p) {
			return true
		}
	}
	return false
}

// Attachment is what the chat surface knows about a file referenced by the
// user's most recent message.
type Attachment struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	DocumentID string `json:"document_id,omitempty"`
}

var uuidPattern = regexp.MustCompile(
	`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// IntendedDocumentID extracts a candidate document id from an attachment:
// the explicit field when set, otherwise a UUID embedded in its URL or name.
func IntendedDocumentID(a Attachment) string {
	if a.DocumentID != "" {
		return a.DocumentID
	}
	if id := uuidPattern.FindString(a.URL); id != "" {
		return id
	}
	return uuidPattern.FindString(a.Name)
}
