// Package mention finds @username tokens in free text and resolves them
// against known users.
//
// Mentions are not stored anywhere. A request's description and response
// messages are scanned when the request is read, and the users they name
// are returned alongside it so clients can render links.
package mention

import (
	"regexp"
	"strings"

	"github.com/sevensolidarity/aidboard/internal/model"
)

// MaxUsernames bounds how many distinct usernames Usernames returns, and so
// how many users one read of a request looks up.
const MaxUsernames = 50

var tokenPattern = regexp.MustCompile(`@([A-Za-z0-9_.\-]+)`)

// trim drops punctuation that ends a sentence rather than a username,
// e.g. "thanks @alice." → "alice".
func trim(name string) string {
	return strings.TrimRight(name, ".-")
}

// Usernames returns the distinct usernames mentioned across texts, in order
// of first appearance, up to MaxUsernames. Duplicates are detected
// case-insensitively.
func Usernames(texts ...string) []string {
	seen := map[string]bool{}
	var names []string
	for _, text := range texts {
		for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
			name := trim(m[1])
			key := strings.ToLower(name)
			if name == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, name)
			if len(names) == MaxUsernames {
				return names
			}
		}
	}
	return names
}

// Resolve splits text into plain and mention segments. A token becomes a
// mention only when its username case-insensitively equals a candidate's;
// anything else stays plain text.
func Resolve(text string, candidates []model.UserSummary) []model.Segment {
	byName := make(map[string]string, len(candidates))
	for _, c := range candidates {
		if c.Username == "" {
			continue
		}
		key := strings.ToLower(c.Username)
		if _, dup := byName[key]; !dup {
			byName[key] = c.ID
		}
	}

	var (
		segments []model.Segment
		plain    strings.Builder
		last     int
	)
	flush := func() {
		if plain.Len() > 0 {
			segments = append(segments, model.Segment{Text: plain.String()})
			plain.Reset()
		}
	}

	for _, loc := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		start, nameStart, nameEnd := loc[0], loc[2], loc[3]
		name := trim(text[nameStart:nameEnd])
		id, ok := byName[strings.ToLower(name)]
		if name == "" || !ok {
			continue
		}
		end := nameStart + len(name)

		plain.WriteString(text[last:start])
		flush()
		segments = append(segments, model.Segment{Text: text[start:end], UserID: id})
		last = end
	}
	plain.WriteString(text[last:])
	flush()

	return segments
}
