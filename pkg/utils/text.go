// Package utils provides shared utilities for text, math, and logging.
package utils

import "strings"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// NormalizeTerm lowercases s and collapses inner whitespace so that attribute
// values such as "Machine  Learning" and "machine learning" compare equal.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// TermSet returns the set of normalized, non-empty terms in values.
func TermSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := NormalizeTerm(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// CountCommon returns how many distinct normalized terms appear in both a and b.
func CountCommon(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	left := TermSet(a)
	common := 0
	for term := range TermSet(b) {
		if _, ok := left[term]; ok {
			common++
		}
	}
	return common
}
