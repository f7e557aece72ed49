package reuse

import (
	"regexp"
	"strings"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// wordPattern matches ASCII word characters only, so accented letters act as separators
var wordPattern = regexp.MustCompile(`\w+`)

// Tokenize lowercases text and returns its word tokens
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// Shingles returns one shingle per start offset of a minWords wide word window over text.
// A page with fewer than minWords words yields none.
func Shingles(text string, minWords int, documentID string, page int) []models.Shingle {
	if minWords < 1 {
		return nil
	}
	words := Tokenize(text)
	if len(words) < minWords {
		return nil
	}

	shingles := make([]models.Shingle, 0, len(words)-minWords+1)
	for i := 0; i <= len(words)-minWords; i++ {
		shingles = append(shingles, models.Shingle{
			Text:       strings.Join(words[i:i+minWords], " "),
			DocumentID: documentID,
			Page:       page,
		})
	}
	return shingles
}

// PageShingles concatenates the shingles of pages in the given order
func PageShingles(pages []models.Page, minWords int) []models.Shingle {
	var all []models.Shingle
	for _, p := range pages {
		all = append(all, Shingles(p.Text, minWords, p.DocumentID, p.Number)...)
	}
	return all
}
