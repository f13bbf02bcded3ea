package citation

import (
	"testing"

	"retrievai-client/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Segment
	}{
		{
			name: "two markers with text",
			text: "See [1] and [2].",
			want: []Segment{
				{Text: "See "},
				{Text: "[1]", Citation: true, Number: 1},
				{Text: " and "},
				{Text: "[2]", Citation: true, Number: 2},
				{Text: "."},
			},
		},
		{
			name: "no markers",
			text: "no citations",
			want: []Segment{{Text: "no citations"}},
		},
		{
			name: "adjacent markers yield no empty gap",
			text: "[1][2]",
			want: []Segment{
				{Text: "[1]", Citation: true, Number: 1},
				{Text: "[2]", Citation: true, Number: 2},
			},
		},
		{
			name: "marker at start and end",
			text: "[3] middle [10]",
			want: []Segment{
				{Text: "[3]", Citation: true, Number: 3},
				{Text: " middle "},
				{Text: "[10]", Citation: true, Number: 10},
			},
		},
		{
			name: "non-numeric brackets are text",
			text: "array[i] and [a1]",
			want: []Segment{{Text: "array[i] and [a1]"}},
		},
		{
			name: "empty input",
			text: "",
			want: []Segment{{Text: ""}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("Parse(%q) = %d segments, want %d: %+v", tt.text, len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestResolve(t *testing.T) {
	plain := []model.Source{
		{Content: "A"},
		{Content: "B"},
		{Content: "C"},
	}
	numbered := []model.Source{
		{Content: "X", Metadata: model.SourceMetadata{DocNum: 2}},
		{Content: "Y", Metadata: model.SourceMetadata{DocNum: 1}},
	}

	tests := []struct {
		name    string
		sources []model.Source
		n       int
		want    string
		wantOK  bool
	}{
		{"positional fallback", plain, 2, "B", true},
		{"first position", plain, 1, "A", true},
		{"doc_num wins over position", numbered, 1, "Y", true},
		{"doc_num out of positional range", numbered, 2, "X", true},
		{"out of range", plain, 4, "", false},
		{"zero", plain, 0, "", false},
		{"empty sources", nil, 1, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.sources, tt.n)
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.Content != tt.want {
				t.Errorf("Resolve() = %q, want %q", got.Content, tt.want)
			}
		})
	}
}
