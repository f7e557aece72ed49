package corpus

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// Separator splits a corpus line into id, title and one field per page
const Separator = "/newpage/"

// minFields is id + title + at least one page
const minFields = 3

var yearPattern = regexp.MustCompile(`\d{4}`)

// ParseRecord parses one corpus line. ok is false for lines with fewer than three fields.
func ParseRecord(line string) (models.CorpusRecord, bool) {
	parts := strings.Split(line, Separator)
	if len(parts) < minFields {
		return models.CorpusRecord{}, false
	}

	id := strings.TrimSpace(strings.NewReplacer(`"`, "", `'`, "").Replace(parts[0]))

	record := models.CorpusRecord{
		DocumentID: id,
		Title:      strings.TrimSpace(parts[1]),
		Pages:      make([]models.Page, 0, len(parts)-2),
	}
	for col := 2; col < len(parts); col++ {
		record.Pages = append(record.Pages, models.Page{
			DocumentID: id,
			Number:     col - 1,
			Text:       parts[col],
		})
	}

	return record, true
}

// SplitLines splits raw corpus bytes into lines, tolerating CRLF endings
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// DecodeMetadata decodes the JSON metadata feed
func DecodeMetadata(data []byte) ([]models.RawMetadataRecord, error) {
	var records []models.RawMetadataRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return records, nil
}

// ExtractYear returns the first four consecutive digits of date, or 0
func ExtractYear(date string) int {
	match := yearPattern.FindString(date)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

// BuildCatalog resolves raw metadata into typed documents keyed by filename.
// Records without a filename are ignored; a later record for the same filename replaces an earlier one.
func BuildCatalog(records []models.RawMetadataRecord) map[string]models.Document {
	catalog := make(map[string]models.Document, len(records))
	for _, r := range records {
		if r.Filename == "" {
			continue
		}
		country := r.Country
		if country == "" {
			country = r.Pays
		}
		catalog[r.Filename] = models.Document{
			ID:      r.Filename,
			Title:   r.Title,
			Year:    ExtractYear(r.Date),
			Author:  r.Author,
			Edition: r.Edition,
			Country: country,
		}
	}
	return catalog
}
