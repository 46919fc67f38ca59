package strutils

import "strings"

// StrListContains looks for a string in a list of strings.
func StrListContains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

// RemoveDuplicatesStable removes duplicate and empty elements from a slice of
// strings, preserving order (and case) of the original elements.  The first
// occurrence of an element wins.
func RemoveDuplicatesStable(items []string, caseInsensitive bool) []string {
	seen := make(map[string]bool, len(items))
	deduped := make([]string, 0, len(items))
	for _, item := range items {
		key := item
		if caseInsensitive {
			key = strings.ToLower(strings.TrimSpace(item))
		}
		if seen[key] || strings.TrimSpace(item) == "" {
			continue
		}
		seen[key] = true
		deduped = append(deduped, item)
	}
	return deduped
}
