package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/palimpsest/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const reportsCollection = "reuse_reports"

// ErrReportNotFound is returned when updating a report that was never inserted
var ErrReportNotFound = errors.New("report not found")

type ReportsRepository struct {
	mongoRepo *MongoRepository
}

func NewReportsRepository(mongoRepo *MongoRepository) *ReportsRepository {
	return &ReportsRepository{
		mongoRepo: mongoRepo,
	}
}

// EnsureIndexes creates the unique run id index
func (r *ReportsRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.mongoRepo.GetCollection(reportsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "runId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create run report index: %w", err)
	}

	return nil
}

// SaveReport creates the report of a run, replacing any earlier attempt with the same run id.
// Outcome fields left by an earlier attempt are cleared.
func (r *ReportsRepository) SaveReport(ctx context.Context, report *models.RunReport) error {
	report.CreatedAt = time.Now()
	report.Error = ""
	report.Result = nil
	report.CompletedAt = nil

	update := bson.M{
		"$set": bson.M{
			"runId":     report.RunID,
			"target":    report.Target,
			"minWords":  report.MinWords,
			"status":    report.Status,
			"createdAt": report.CreatedAt,
		},
		"$unset": bson.M{
			"error":       "",
			"result":      "",
			"completedAt": "",
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.mongoRepo.UpdateOne(ctx, reportsCollection, bson.M{"runId": report.RunID}, update, opts)
	if err != nil {
		return fmt.Errorf("failed to save run report: %w", err)
	}

	return nil
}

// CompleteReport stores the final status of a run, with its result or its error message
func (r *ReportsRepository) CompleteReport(ctx context.Context, runID string, status models.Step, result *models.RunResult, errMsg string) error {
	set := bson.M{
		"status":      status,
		"completedAt": time.Now(),
	}
	unset := bson.M{}
	if result != nil {
		set["result"] = result
	} else {
		unset["result"] = ""
	}
	if errMsg != "" {
		set["error"] = errMsg
	} else {
		unset["error"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	res, err := r.mongoRepo.UpdateOne(ctx, reportsCollection, bson.M{"runId": runID}, update)
	if err != nil {
		return fmt.Errorf("failed to update run report: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrReportNotFound
	}

	return nil
}

func (r *ReportsRepository) GetReport(ctx context.Context, runID string) (*models.RunReport, error) {
	filter := bson.M{"runId": runID}
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	var report models.RunReport
	err := r.mongoRepo.FindOne(ctx, reportsCollection, filter, opts).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find run report: %w", err)
	}

	return &report, nil
}
