package reuse

import (
	"context"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// sourceDocument is a non-target document waiting to be matched
type sourceDocument struct {
	Document models.Document
	Pages    []models.Page
}

// documentMatches is what a matcher produces for one source document
type documentMatches struct {
	Position int
	Shingles int
	Matches  []models.Match
}

// MatchPages probes every shingle of pages against idx, in page then offset order.
// It returns the matches and the number of shingles scanned.
func MatchPages(idx *TargetIndex, pages []models.Page, minWords int) ([]models.Match, int) {
	var matches []models.Match
	scanned := 0
	for _, p := range pages {
		for _, s := range Shingles(p.Text, minWords, p.DocumentID, p.Number) {
			scanned++
			hit, ok := idx.Lookup(s.Text)
			if !ok {
				continue
			}
			matches = append(matches, models.Match{
				Text:       s.Text,
				TargetID:   hit.DocumentID,
				TargetPage: hit.Page,
				SourceID:   s.DocumentID,
				SourcePage: s.Page,
			})
		}
	}
	return matches, scanned
}

// MatchJob matches one source document against a frozen target index
type MatchJob struct {
	Index      *TargetIndex
	Source     sourceDocument
	MinWords   int
	Position   int
	ResultChan chan<- documentMatches
}

// Execute executes the match job. ResultChan must have room for the result.
func (j *MatchJob) Execute(ctx context.Context) error {
	matches, scanned := MatchPages(j.Index, j.Source.Pages, j.MinWords)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case j.ResultChan <- documentMatches{Position: j.Position, Shingles: scanned, Matches: matches}:
		return nil
	}
}
