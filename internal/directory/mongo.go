package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	usersCollection      = "users"
	tombstonesCollection = "deleted_users"
)

// Index names double as duplicate-key discriminators, so keep them stable.
const (
	idxExternalID = "uniq_external_id"
	idxEmail      = "uniq_email"
)

// MongoStore is the production Store backed by MongoDB collections.
type MongoStore struct {
	users      *mongo.Collection
	tombstones *mongo.Collection
}

// NewMongoStore wraps the directory collections of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		users:      db.Collection(usersCollection),
		tombstones: db.Collection(tombstonesCollection),
	}
}

// Connect opens a client, verifies connectivity and returns the database handle.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create mongo client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to reach mongo: %w", err)
	}

	return client, client.Database(database), nil
}

// EnsureIndexes creates the uniqueness indexes the directory relies on.
// Safe to call on every startup; existing indexes are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "externalId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxExternalID),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(idxEmail),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create directory indexes: %w", err)
	}

	_, err = db.Collection(tombstonesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "externalId", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(idxExternalID),
	})
	if err != nil {
		return fmt.Errorf("failed to create tombstone index: %w", err)
	}
	return nil
}

func (s *MongoStore) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	return s.findOne(ctx, bson.M{"externalId": externalID})
}

func (s *MongoStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	err := s.users.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("find user", err)
	}
	return &u, nil
}

func (s *MongoStore) Insert(ctx context.Context, u User) (*User, error) {
	if u.Role == "" {
		u.Role = RoleCustomer
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.ID = bson.NewObjectID()

	_, err := s.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		// The violated index name tells us which uniqueness constraint fired.
		if strings.Contains(err.Error(), idxExternalID) {
			return nil, ErrDuplicateExternalID
		}
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, unavailable("insert user", err)
	}
	return &u, nil
}

func (s *MongoStore) Rekey(ctx context.Context, oldExternalID, newExternalID string, overrides ProfileOverrides) (*User, error) {
	old, err := s.FindByExternalID(ctx, oldExternalID)
	if errors.Is(err, ErrNotFound) {
		// The old row is gone; a redelivered event may have rekeyed already.
		if cur, curErr := s.FindByExternalID(ctx, newExternalID); curErr == nil {
			return cur, nil
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	merged := *old
	merged.ExternalID = newExternalID
	overrides.Apply(&merged)

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	set := bson.M{
		"externalId": merged.ExternalID,
		"firstName":  merged.FirstName,
		"lastName":   merged.LastName,
		"imageUrl":   merged.ImageURL,
	}

	var updated User
	err = s.users.FindOneAndUpdate(ctx,
		bson.M{"externalId": oldExternalID},
		bson.M{"$set": set},
		opts,
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("rekey user", err)
	}
	return &updated, nil
}

func (s *MongoStore) UpdateProfile(ctx context.Context, externalID string, patch ProfilePatch) (*User, error) {
	if patch.IsEmpty() {
		return s.FindByExternalID(ctx, externalID)
	}

	set := bson.M{}
	if patch.Email != nil && *patch.Email != "" {
		set["email"] = *patch.Email
	}
	if patch.FirstName != nil {
		set["firstName"] = *patch.FirstName
	}
	if patch.LastName != nil {
		set["lastName"] = *patch.LastName
	}
	if patch.ImageURL != nil {
		set["imageUrl"] = *patch.ImageURL
	}
	if patch.PhoneNumber != nil {
		set["phoneNumber"] = *patch.PhoneNumber
	}
	if len(set) == 0 {
		return s.FindByExternalID(ctx, externalID)
	}

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)

	var updated User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"externalId": externalID},
		bson.M{"$set": set},
		opts,
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, unavailable("update user profile", err)
	}
	return &updated, nil
}

func (s *MongoStore) MarkDeleted(ctx context.Context, externalID string) error {
	_, err := s.tombstones.UpdateOne(ctx,
		bson.M{"externalId": externalID},
		bson.M{"$setOnInsert": bson.M{
			"externalId": externalID,
			"deletedAt":  time.Now().UTC(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return unavailable("mark user deleted", err)
	}
	return nil
}

func (s *MongoStore) WasDeleted(ctx context.Context, externalID string) (bool, error) {
	err := s.tombstones.FindOne(ctx, bson.M{"externalId": externalID}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("look up tombstone", err)
	}
	return true, nil
}

func (s *MongoStore) Delete(ctx context.Context, externalID string) (*User, error) {
	var deleted User
	err := s.users.FindOneAndDelete(ctx, bson.M{"externalId": externalID}).Decode(&deleted)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("delete user", err)
	}
	return &deleted, nil
}

func (s *MongoStore) List(ctx context.Context, f ListFilter) ([]User, int64, error) {
	filter := bson.M{}
	if f.ExternalID != "" {
		filter["externalId"] = f.ExternalID
	}
	if f.Email != "" {
		filter["email"] = f.Email
	}
	if f.Role != "" {
		filter["role"] = f.Role
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(f.Skip)

	cursor, err := s.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, unavailable("list users", err)
	}
	defer cursor.Close(ctx)

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, unavailable("decode users", err)
	}

	total, err := s.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, unavailable("count users", err)
	}
	return users, total, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
