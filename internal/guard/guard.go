// Package guard admits or rejects questions before any retrieval or generation work
// is done, and cleans up generated answers before they are returned.
package guard

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Reason names the check a query failed.
type Reason string

const (
	ReasonEmpty       Reason = "empty_query"
	ReasonTooLong     Reason = "query_too_long"
	ReasonTooShort    Reason = "query_too_short"
	ReasonURL         Reason = "url_detected"
	ReasonEmail       Reason = "email_detected"
	ReasonInjection   Reason = "prompt_injection"
	ReasonOutOfDomain Reason = "out_of_domain"
)

// Severity grades a rejection for logging and metrics.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const truncationSuffix = "... (response truncated)"

// Decision is the outcome of validating one query. A rejection is a normal outcome,
// not an error: Message is meant to be shown to the user.
type Decision struct {
	Valid     bool     `json:"valid"`
	Reason    Reason   `json:"reason,omitempty"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	Sanitized string   `json:"sanitized,omitempty"`
}

// Violations returns the failed checks in the form stored with query metrics.
func (d Decision) Violations() []string {
	if d.Valid {
		return []string{}
	}
	return []string{string(d.Reason)}
}

// Guard validates questions against a fixed, ordered list of checks.
type Guard struct {
	cfg      config.GuardConfig
	keywords []string
}

// New creates a guard. Domain keywords default to DefaultDomainKeywords.
func New(cfg config.GuardConfig) *Guard {
	keywords := cfg.DomainKeywords
	if len(keywords) == 0 {
		keywords = DefaultDomainKeywords
	}
	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lower = append(lower, k)
		}
	}
	return &Guard{cfg: cfg, keywords: lower}
}

func reject(reason Reason, severity Severity, message string) Decision {
	return Decision{Reason: reason, Severity: severity, Message: message}
}

// Validate runs the checks in order and stops at the first failure.
func (g *Guard) Validate(query string) Decision {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return reject(ReasonEmpty, SeverityMedium, "Please ask a question.")
	}
	if g.cfg.MaxQueryLength > 0 && utf8.RuneCountInString(query) > g.cfg.MaxQueryLength {
		return reject(ReasonTooLong, SeverityMedium,
			fmt.Sprintf("Question too long. Limit: %d characters.", g.cfg.MaxQueryLength))
	}
	if utf8.RuneCountInString(trimmed) < g.cfg.MinQueryLength {
		return reject(ReasonTooShort, SeverityLow,
			"Question too short. Please ask a more complete question.")
	}
	if urlPattern.MatchString(query) {
		return reject(ReasonURL, SeverityMedium,
			"URLs are not allowed in the question. Please reformulate.")
	}
	if emailPattern.MatchString(query) {
		return reject(ReasonEmail, SeverityLow,
			"Emails are not allowed in the question. Please reformulate.")
	}
	if !g.cfg.DisableInjectionCheck && LooksLikeInjection(query) {
		return reject(ReasonInjection, SeverityHigh,
			"Suspicious query detected. Please reformulate your question.")
	}
	if !g.cfg.DisableDomainCheck && !g.inDomain(query) {
		return reject(ReasonOutOfDomain, SeverityLow,
			"Your question seems to be outside the scope. "+
				"This chatbot answers about AI, ML, NLP and RAG. "+
				"Please ask a question related to these topics.")
	}

	return Decision{Valid: true, Severity: SeverityLow, Message: "Valid query", Sanitized: trimmed}
}

// LooksLikeInjection reports whether query matches any prompt-injection heuristic.
func LooksLikeInjection(query string) bool {
	lower := strings.ToLower(query)
	for _, re := range injectionPhrases {
		if re.MatchString(lower) {
			return true
		}
	}

	special := 0
	for _, r := range query {
		if strings.ContainsRune(specialChars, r) {
			special++
		}
	}
	return special > 10 ||
		strings.Count(query, "\n") > 5 ||
		strings.Count(query, `\`) > 10
}

func (g *Guard) inDomain(query string) bool {
	lower := strings.ToLower(query)
	for _, k := range g.keywords {
		if containsWord(lower, k) {
			return true
		}
	}
	// Short questions are admitted without a topic keyword unless the bypass is off.
	limit := g.cfg.ShortQueryWordsOrDefault()
	return limit > 0 && len(strings.Fields(query)) <= limit
}

// containsWord reports whether word occurs in s with no letter or digit directly
// on either side.
func containsWord(s, word string) bool {
	for from := 0; from <= len(s)-len(word); {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after)) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		from = start + size
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Sanitize truncates an over-long answer and strips role delimiters a model may echo.
func (g *Guard) Sanitize(answer string) string {
	answer = utils.Truncate(answer, g.cfg.MaxAnswerLength, truncationSuffix)
	answer = systemBlock.ReplaceAllString(answer, "")
	answer = chatMLBlock.ReplaceAllString(answer, "")
	answer = strayDelimiter.ReplaceAllString(answer, "")
	return strings.TrimSpace(answer)
}
