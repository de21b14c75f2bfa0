package service

import "strings"

// NormalizeTags trims every entry, drops empty ones and collapses
// case-insensitive duplicates. The first occurrence wins and keeps its
// original casing, so ["Food", "food ", "", "rides"] becomes
// ["Food", "rides"].
//
// The result is never nil; an empty input yields an empty list.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tag)
	}
	return out
}

// splitTags parses the comma-separated tags query parameter.
func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(raw, ","))
}
