package service

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// charsPerToken is the fixed approximation used for token budgeting.
const charsPerToken = 4.0

// DefaultMaxInputLength caps input size before any other processing.
const DefaultMaxInputLength = 10000

// injectionPatterns covers instruction-override phrasing. Any match blocks
// the input outright.
var injectionPatterns = []string{
	`ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|prompts?|context)`,
	`system:\s*you\s+are`,
	`assistant:\s*`,
	`human:\s*`,
	`<\s*system\s*>`,
	`<\s*/?\s*prompt\s*>`,
	`forget\s+(everything|all)`,
	`new\s+instructions?:`,
	`override\s+(system|instructions?)`,
	`act\s+as\s+if`,
	`pretend\s+(you\s+are|to\s+be)`,
	`jailbreak`,
	`dan\s+mode`,
	`developer\s+mode`,
	`ignore\s+safety`,
	`bypass\s+(filter|safety|restrictions?)`,
}

var injectionRegex = regexp.MustCompile(`(?i)` + strings.Join(injectionPatterns, "|"))

// sensitivePatterns flag content for warning, they never block on their own.
var sensitivePatterns = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"CreditCard", regexp.MustCompile(`\b\d{16}\b|\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
	{"Password", regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`)},
	{"ApiKey", regexp.MustCompile(`(?i)api[_-]?key\s*[:=]\s*\S+`)},
	{"Secret", regexp.MustCompile(`(?i)secret\s*[:=]\s*\S+`)},
	{"SaudiId", regexp.MustCompile(`\b[12]\d{9}\b`)}, // Saudi national ID format
}

// delimiterDefusals breaks up sequences that could restructure a prompt via
// markdown or template syntax.
var delimiterDefusals = strings.NewReplacer(
	"```", "'''",
	"<<", "< <",
	">>", "> >",
	"{{", "{ {",
	"}}", "} }",
)

// DetectInjection reports whether the input matches any instruction-override
// pattern.
func DetectInjection(input string) bool {
	return injectionRegex.MatchString(input)
}

// DetectSensitiveData returns the names of the sensitive-data patterns the
// input matches, in pattern order.
func DetectSensitiveData(input string) []string {
	var detected []string
	for _, p := range sensitivePatterns {
		if p.Pattern.MatchString(input) {
			detected = append(detected, p.Name)
		}
	}
	return detected
}

// DefuseDelimiters neutralizes prompt-structure delimiters in the input.
func DefuseDelimiters(input string) string {
	return delimiterDefusals.Replace(input)
}

// Truncate caps input at max bytes without splitting a multi-byte rune: the
// cut point walks back to the nearest rune boundary so the result stays
// valid UTF-8.
func Truncate(input string, max int) string {
	if len(input) <= max {
		return input
	}
	for max > 0 && !utf8.RuneStart(input[max]) {
		max--
	}
	return input[:max]
}

// EstimateTokens approximates the token count of text at four characters per
// token, rounded up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / charsPerToken))
}
