package models

// RawMetadataRecord is one entry of the metadata feed, passed through to run results untouched
type RawMetadataRecord struct {
	Filename string `bson:"filename" json:"filename"`
	Title    string `bson:"title,omitempty" json:"title,omitempty"`
	Author   string `bson:"author,omitempty" json:"author,omitempty"`
	Date     string `bson:"date,omitempty" json:"date,omitempty"`
	Edition  string `bson:"edition,omitempty" json:"edition,omitempty"`
	Country  string `bson:"country,omitempty" json:"country,omitempty"`
	Pays     string `bson:"pays,omitempty" json:"pays,omitempty"`
}

// Document describes a corpus document. Missing metadata fields are empty, an unknown year is 0.
type Document struct {
	ID      string `bson:"id" json:"id"`
	Title   string `bson:"title" json:"title"`
	Year    int    `bson:"year" json:"year"`
	Author  string `bson:"author" json:"author"`
	Edition string `bson:"edition" json:"edition"`
	Country string `bson:"country" json:"country"`
}

// Page is the OCR text of one page. Numbers start at 1.
type Page struct {
	DocumentID string `json:"documentId"`
	Number     int    `json:"number"`
	Text       string `json:"text"`
}

// CorpusRecord is one parsed corpus line
type CorpusRecord struct {
	DocumentID string
	Title      string
	Pages      []Page
}
