// Package citation maps inline [n] markers in finalized answers to the
// sources that back them. It is stateless and read-only.
package citation

import (
	"regexp"
	"strconv"

	"retrievai-client/internal/model"
)

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Segment is either a literal text span or a citation marker. A marker
// segment keeps the raw matched text alongside the parsed number.
type Segment struct {
	Text     string
	Citation bool
	Number   int
}

// Parse splits text into alternating text and citation segments, left to
// right. Adjacent markers like "[1][2]" produce no empty text segment
// between them; text without markers comes back as one text segment.
func Parse(text string) []Segment {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []Segment{{Text: text}}
	}

	segments := make([]Segment, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segments = append(segments, Segment{Text: text[last:m[0]]})
		}
		number, _ := strconv.Atoi(text[m[2]:m[3]])
		segments = append(segments, Segment{
			Text:     text[m[0]:m[1]],
			Citation: true,
			Number:   number,
		})
		last = m[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// Resolve returns the source a marker refers to: an explicit doc_num
// match wins, then the 1-indexed position in the list. A false return
// means the marker should render inert.
func Resolve(sources []model.Source, n int) (model.Source, bool) {
	if n < 1 {
		return model.Source{}, false
	}
	for _, src := range sources {
		if src.Metadata.DocNum == n {
			return src, true
		}
	}
	if n >= 1 && n <= len(sources) {
		return sources[n-1], true
	}
	return model.Source{}, false
}
