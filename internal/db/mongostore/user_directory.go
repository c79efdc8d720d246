package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/timesheet-app/timesheet/internal/db/models"
)

// UserDirectory resolves user identities from the users collection.
type UserDirectory struct {
	coll *mongo.Collection
}

func NewUserDirectory(coll *mongo.Collection) *UserDirectory {
	return &UserDirectory{coll: coll}
}

// GetUsersByIDs returns the users found for ids keyed by ID. Unknown IDs are
// absent from the map.
func (d *UserDirectory) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cur, err := d.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}
	var found []*models.User
	if err := cur.All(ctx, &found); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}
