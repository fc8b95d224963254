package chat

import "regexp"

// Citation is one source reference extracted from an answer. Location is a
// page number for documents and web pages, or a timestamp for videos.
type Citation struct {
	Source   string `json:"source"`
	Location string `json:"location"`
}

// citationRe matches the citation markers the system prompt asks for:
// [Source: <name>, Page: <n>] and [Source: <name>, Time: <mm:ss>].
var citationRe = regexp.MustCompile(`\[Source: ([^,\]]+), (?:Page|Time): ([^\]]+)\]`)

// ExtractCitations returns the unique citations in an answer, in order of
// first appearance.
func ExtractCitations(answer string) []Citation {
	matches := citationRe.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return []Citation{}
	}

	seen := make(map[Citation]bool, len(matches))
	citations := make([]Citation, 0, len(matches))
	for _, m := range matches {
		c := Citation{Source: m[1], Location: m[2]}
		if seen[c] {
			continue
		}
		seen[c] = true
		citations = append(citations, c)
	}
	return citations
}
