package model

// MessagesEqual reports whether two message lists are structurally equal.
// Comparison is order-sensitive. Callers use it to skip view updates when
// a store notification carries no actual change.
func MessagesEqual(a, b []Message) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Content != b[i].Content {
			return false
		}
		if !SourcesEqual(a[i].Sources, b[i].Sources) {
			return false
		}
	}
	return true
}

// SourcesEqual compares source lists element-wise, in order. Two sources
// match on content plus the five metadata fields.
func SourcesEqual(a, b []Source) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Content != b[i].Content {
			return false
		}
		if !metadataEqual(a[i].Metadata, b[i].Metadata) {
			return false
		}
	}
	return true
}

func metadataEqual(a, b SourceMetadata) bool {
	if a.Source != b.Source || a.FileHash != b.FileHash || a.Title != b.Title || a.DocNum != b.DocNum {
		return false
	}
	if (a.Page == nil) != (b.Page == nil) {
		return false
	}
	return a.Page == nil || *a.Page == *b.Page
}
