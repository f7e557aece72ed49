package repository

import (
	"context"
	"fmt"

	"github.com/RishiKendai/palimpsest/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const metadataCollection = "documents_metadata"

// MetadataRepository stores the metadata feed in MongoDB, one document per filename
type MetadataRepository struct {
	mongoRepo *MongoRepository
}

func NewMetadataRepository(mongoRepo *MongoRepository) *MetadataRepository {
	return &MetadataRepository{
		mongoRepo: mongoRepo,
	}
}

// UpsertMetadata inserts or replaces records by filename
func (r *MetadataRepository) UpsertMetadata(ctx context.Context, records []models.RawMetadataRecord) error {
	if len(records) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	for _, record := range records {
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"filename": record.Filename}).
			SetReplacement(record).
			SetUpsert(true))
	}

	_, err := r.mongoRepo.BulkWrite(ctx, metadataCollection, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to upsert metadata: %w", err)
	}

	return nil
}

func (r *MetadataRepository) ListMetadata(ctx context.Context) ([]models.RawMetadataRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "filename", Value: 1}})

	cursor, err := r.mongoRepo.FindMany(ctx, metadataCollection, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find metadata: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]models.RawMetadataRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return records, nil
}

func (r *MetadataRepository) CountMetadata(ctx context.Context) (int64, error) {
	count, err := r.mongoRepo.CountDocuments(ctx, metadataCollection, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count metadata: %w", err)
	}

	return count, nil
}
