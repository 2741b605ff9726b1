package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	dErrors "shahin/pkg/domain-errors"
)

// MaxVersion is the hard cap on code versions; CreateNewVersion fails once a
// chain reaches it.
const MaxVersion = 99

// codePattern enforces the wire format PPP-TTTTT-SS-YYYY-NNNNNN-VV:
// 3 uppercase letters, 3-6 uppercase alphanumerics, then fixed-width numeric
// segments for stage, year, sequence and version.
var codePattern = regexp.MustCompile(`^([A-Z]{3})-([A-Z0-9]{3,6})-(\d{2})-(\d{4})-(\d{6})-(\d{2})$`)

var tenantCodePattern = regexp.MustCompile(`^[A-Z0-9]{3,6}$`)

// DefaultReservedTenantCodes are rejected for code generation regardless of
// format validity. The set is a fixed default; Service options may extend it.
var DefaultReservedTenantCodes = []string{"TEST", "SYS", "ADM"}

// entityTypePrefixes maps governed entity types to their 3-letter code prefix.
var entityTypePrefixes = map[string]string{
	"assessment":     "ASM",
	"risk":           "RSK",
	"control":        "CTL",
	"evidence":       "EVD",
	"policy":         "POL",
	"audit":          "AUD",
	"compliance":     "CMP",
	"resilience":     "RES",
	"sustainability": "SUS",
	"workflow":       "WFL",
	"exception":      "EXC",
}

// prefixEntityTypes is the reverse lookup, built once at init.
var prefixEntityTypes = func() map[string]string {
	m := make(map[string]string, len(entityTypePrefixes))
	for t, p := range entityTypePrefixes {
		m[p] = t
	}
	return m
}()

// ParsedCode is the decomposition of a well-formed serial code.
type ParsedCode struct {
	Prefix     string
	TenantCode string
	Stage      int
	Year       int
	Sequence   int
	Version    int
}

// PrefixFor resolves the registry prefix for a governed entity type.
func PrefixFor(entityType string) (string, error) {
	prefix, ok := entityTypePrefixes[strings.ToLower(strings.TrimSpace(entityType))]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown entity type %q", entityType)
	}
	return prefix, nil
}

// EntityTypeFor resolves the governed entity type for a registry prefix.
func EntityTypeFor(prefix string) (string, error) {
	entityType, ok := prefixEntityTypes[strings.ToUpper(strings.TrimSpace(prefix))]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeValidation, "unknown prefix %q", prefix)
	}
	return entityType, nil
}

// NormalizeTenantCode trims surrounding whitespace and upcases the code so
// callers can pass user input as-is.
func NormalizeTenantCode(tenantCode string) string {
	return strings.ToUpper(strings.TrimSpace(tenantCode))
}

// ValidateTenantCode checks the 3-6 uppercase alphanumeric constraint and the
// reserved set. The reserved slice always contains at least the defaults.
func ValidateTenantCode(tenantCode string, reserved []string) error {
	if !tenantCodePattern.MatchString(tenantCode) {
		return dErrors.New(dErrors.CodeValidation,
			"tenant code must be 3-6 uppercase alphanumeric characters")
	}
	for _, r := range reserved {
		if tenantCode == r {
			return dErrors.Newf(dErrors.CodeValidation, "tenant code %q is reserved", tenantCode)
		}
	}
	return nil
}

// FormatCode renders the canonical code string from its components.
func FormatCode(prefix, tenantCode string, stage, year, sequence, version int) string {
	return fmt.Sprintf("%s-%s-%02d-%04d-%06d-%02d",
		prefix, tenantCode, stage, year, sequence, version)
}

// ParseCode validates the fixed format and decomposes a serial code. Any
// deviation (wrong segment count, lowercase tenant code, wrong digit widths)
// is a validation error.
func ParseCode(code string) (*ParsedCode, error) {
	m := codePattern.FindStringSubmatch(code)
	if m == nil {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid serial code format: %q", code)
	}
	stage, _ := strconv.Atoi(m[3])
	year, _ := strconv.Atoi(m[4])
	sequence, _ := strconv.Atoi(m[5])
	version, _ := strconv.Atoi(m[6])
	return &ParsedCode{
		Prefix:     m[1],
		TenantCode: m[2],
		Stage:      stage,
		Year:       year,
		Sequence:   sequence,
		Version:    version,
	}, nil
}
