package corpus

import (
	"context"
	"fmt"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// MetadataStore lists metadata records kept outside the metadata feed, e.g. in MongoDB
type MetadataStore interface {
	ListMetadata(ctx context.Context) ([]models.RawMetadataRecord, error)
}

// Source provides the two inputs of a run: the metadata feed and the corpus
type Source struct {
	client      *Client
	metadataURL string
	corpusURL   string
	store       MetadataStore
}

// NewSource creates a source reading both inputs through client
func NewSource(client *Client, metadataURL, corpusURL string) *Source {
	return &Source{
		client:      client,
		metadataURL: metadataURL,
		corpusURL:   corpusURL,
	}
}

// WithMetadataStore makes the source read metadata from store instead of the metadata URL
func (s *Source) WithMetadataStore(store MetadataStore) *Source {
	s.store = store
	return s
}

func (s *Source) LoadMetadata(ctx context.Context) ([]models.RawMetadataRecord, error) {
	if s.store != nil {
		records, err := s.store.ListMetadata(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list metadata: %w", err)
		}
		return records, nil
	}

	data, err := s.client.Fetch(ctx, s.metadataURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	return DecodeMetadata(data)
}

func (s *Source) LoadCorpus(ctx context.Context) ([]byte, error) {
	data, err := s.client.Fetch(ctx, s.corpusURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch corpus: %w", err)
	}
	return data, nil
}
