package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/timesheet-app/timesheet/internal/db/models"
	"github.com/timesheet-app/timesheet/internal/db/repositories"
)

// AuditStore keeps audit records in a single collection.
type AuditStore struct {
	coll *mongo.Collection
}

// NewAuditStore wraps coll.
func NewAuditStore(coll *mongo.Collection) *AuditStore {
	return &AuditStore{coll: coll}
}

// CreateAuditLog inserts a record. ID and CreatedAt are assigned here.
func (s *AuditStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	if _, err := s.coll.InsertOne(ctx, log); err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns one page of matching records, newest first, and the total match count.
func (s *AuditStore) ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error) {
	filter := buildFilter(filters)

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	logs, err := s.find(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return logs, int(total), nil
}

// FindAuditLogs returns up to limit matching records, newest first, without counting.
func (s *AuditStore) FindAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, error) {
	return s.find(ctx, buildFilter(filters), limit, offset)
}

func (s *AuditStore) find(ctx context.Context, filter bson.M, limit, offset int) ([]*models.AuditLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	logs := make([]*models.AuditLog, 0)
	if err := cur.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode audit logs: %w", err)
	}
	return logs, nil
}

// GetAuditLog returns the record with id, or nil when none exists.
func (s *AuditStore) GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error) {
	log := &models.AuditLog{}
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(log)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log: %w", err)
	}
	return log, nil
}

// GetAuditStats aggregates records created within [start, end]. Either bound may be nil.
func (s *AuditStore) GetAuditStats(ctx context.Context, start, end *time.Time) (*models.AuditStats, error) {
	filters := repositories.AuditFilters{StartDate: start, EndDate: end}
	match := buildFilter(filters)
	stats := &models.AuditStats{}

	total, err := s.coll.CountDocuments(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("failed to count audit logs: %w", err)
	}
	stats.Summary.TotalLogs = total

	groups := []struct {
		field string
		dest  *[]models.GroupCount
	}{
		{"action", &stats.Summary.ActionStats},
		{"resource", &stats.Summary.ResourceStats},
		{"status", &stats.Summary.StatusStats},
	}
	for _, g := range groups {
		pipeline := mongo.Pipeline{
			{{Key: "$match", Value: match}},
			{{Key: "$group", Value: bson.M{"_id": "$" + g.field, "count": bson.M{"$sum": 1}}}},
			{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		}
		*g.dest = make([]models.GroupCount, 0)
		if err := s.aggregate(ctx, pipeline, g.dest); err != nil {
			return nil, fmt.Errorf("failed to group audit logs by %s: %w", g.field, err)
		}
	}

	withUser := bson.M{"userId": bson.M{"$ne": nil}}
	for k, v := range match {
		withUser[k] = v
	}
	topPipeline := mongo.Pipeline{
		{{Key: "$match", Value: withUser}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$userId",
			"userName":     bson.M{"$first": "$userName"},
			"userEmail":    bson.M{"$first": "$userEmail"},
			"count":        bson.M{"$sum": 1},
			"lastActivity": bson.M{"$max": "$createdAt"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "lastActivity", Value: -1}}}},
		{{Key: "$limit", Value: models.StatsTopUsers}},
	}
	stats.TopUsers = make([]models.TopUser, 0)
	if err := s.aggregate(ctx, topPipeline, &stats.TopUsers); err != nil {
		return nil, fmt.Errorf("failed to rank audit users: %w", err)
	}

	failure := string(models.StatusFailure)
	filters.Status = &failure
	failures, err := s.FindAuditLogs(ctx, filters, models.StatsRecentFailures, 0)
	if err != nil {
		return nil, err
	}
	stats.RecentFailures = failures

	return stats, nil
}

func (s *AuditStore) aggregate(ctx context.Context, pipeline mongo.Pipeline, dest interface{}) error {
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, dest)
}

// DeleteAuditLogsBefore removes every record created before cutoff and returns how many were deleted.
func (s *AuditStore) DeleteAuditLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit logs: %w", err)
	}
	return res.DeletedCount, nil
}

// Ping checks the connection; used by the readiness probe.
func (s *AuditStore) Ping(ctx context.Context) error {
	return s.coll.Database().Client().Ping(ctx, nil)
}
