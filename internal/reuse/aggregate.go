package reuse

import (
	"sort"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// Direction places a document chronologically relative to the target; equal years are IN
func Direction(otherYear, targetYear int) models.Direction {
	if otherYear <= targetYear {
		return models.DirectionIn
	}
	return models.DirectionOut
}

// Aggregate turns a document's matches into a connection. ok is false when there are no matches.
func Aggregate(target models.TargetDescriptor, doc models.Document, matches []models.Match) (models.Connection, bool) {
	if len(matches) == 0 {
		return models.Connection{}, false
	}
	return models.Connection{
		ID:        doc.ID,
		Title:     doc.Title,
		Year:      doc.Year,
		Weight:    len(matches),
		Direction: Direction(doc.Year, target.Year),
		Commons:   matches,
	}, true
}

// PageGroup is the set of shared snippets between one target page and one source page
type PageGroup struct {
	TargetID   string   `json:"targetId"`
	TargetPage int      `json:"targetPage"`
	SourceID   string   `json:"sourceId"`
	SourcePage int      `json:"sourcePage"`
	Snippets   []string `json:"snippets"`
}

// GroupByPagePair groups a connection's matches by (target page, source page), ordered by target
// then source page. It is a read-side view; connections themselves stay ungrouped.
func GroupByPagePair(c models.Connection) []PageGroup {
	type pair struct{ target, source int }

	index := make(map[pair]int)
	groups := make([]PageGroup, 0)
	for _, m := range c.Commons {
		key := pair{m.TargetPage, m.SourcePage}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, PageGroup{
				TargetID:   m.TargetID,
				TargetPage: m.TargetPage,
				SourceID:   m.SourceID,
				SourcePage: m.SourcePage,
			})
		}
		groups[i].Snippets = append(groups[i].Snippets, m.Text)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		if groups[a].TargetPage != groups[b].TargetPage {
			return groups[a].TargetPage < groups[b].TargetPage
		}
		return groups[a].SourcePage < groups[b].SourcePage
	})
	return groups
}
