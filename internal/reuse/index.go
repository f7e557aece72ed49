package reuse

import (
	"github.com/RishiKendai/palimpsest/internal/models"
)

// TargetIndex maps shingle text to the first location it was seen at in the target.
// It is read-only once built and safe for concurrent lookups.
type TargetIndex struct {
	entries map[string]models.Shingle
}

func newTargetIndex() *TargetIndex {
	return &TargetIndex{entries: make(map[string]models.Shingle)}
}

// BuildIndex indexes the target's pages, which must be given in increasing page order
func BuildIndex(pages []models.Page, minWords int) *TargetIndex {
	idx := newTargetIndex()
	for _, p := range pages {
		idx.add(Shingles(p.Text, minWords, p.DocumentID, p.Number))
	}
	return idx
}

// add keeps the first occurrence of each shingle text
func (idx *TargetIndex) add(shingles []models.Shingle) {
	for _, s := range shingles {
		if _, exists := idx.entries[s.Text]; !exists {
			idx.entries[s.Text] = s
		}
	}
}

// Lookup returns the stored location of text
func (idx *TargetIndex) Lookup(text string) (models.Shingle, bool) {
	s, ok := idx.entries[text]
	return s, ok
}

// Len returns the number of distinct shingles indexed
func (idx *TargetIndex) Len() int {
	return len(idx.entries)
}
