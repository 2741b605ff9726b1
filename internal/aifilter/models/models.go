package models

import "time"

// GlobalKey is the rate-limit key used when no tenant is known.
const GlobalKey = "global"

// RateLimitResult is the outcome of a fixed-window rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	RetryAfter time.Duration
}

// CheckResult is the outcome of running an input through the safety filter.
type CheckResult struct {
	SanitizedInput  string   `json:"sanitized_input"`
	EstimatedTokens int      `json:"estimated_tokens"`
	SensitiveTypes  []string `json:"sensitive_data_types,omitempty"`
	Truncated       bool     `json:"truncated"`
}
