package models

import "strings"

// SplitScopes splits a space-separated scope string.
func SplitScopes(scopes string) []string {
	return strings.Fields(scopes)
}

// JoinScopes joins scopes with spaces.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ScopeSet converts a space-separated scope string into a set.
func ScopeSet(scopes string) map[string]bool {
	set := make(map[string]bool)
	for _, s := range strings.Fields(scopes) {
		set[s] = true
	}
	return set
}

// ScopesSubset reports whether every scope in requested is present in granted.
// Partial overlap fails closed.
func ScopesSubset(granted map[string]bool, requested []string) bool {
	for _, s := range requested {
		if !granted[s] {
			return false
		}
	}
	return true
}
