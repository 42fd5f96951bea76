package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/itteamcrypto-ai/x-scraper/api/types"
)

const (
	colAccounts   = "tracked_accounts"
	colCursors    = "scheduler_cursors"
	colRawPosts   = "raw_posts"
	colClassified = "classified_posts"
)

// Mongo implements Store backed by a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to MongoDB and ensures the unique indexes that back
// the pipeline's idempotency guarantees.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	m := &Mongo{client: client, db: client.Database(database)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	for col, key := range map[string]string{
		colAccounts:   "handle",
		colCursors:    "name",
		colRawPosts:   "post_id",
		colClassified: "post_id",
	} {
		_, err := m.db.Collection(col).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: key, Value: 1}},
			Options: unique,
		})
		if err != nil {
			return fmt.Errorf("create index on %s.%s: %w", col, key, err)
		}
	}
	_, err := m.db.Collection(colRawPosts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create status index: %w", err)
	}
	return nil
}

// Close disconnects the underlying client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) CreateAccount(ctx context.Context, a *types.TrackedAccount) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.Collection(colAccounts).InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (m *Mongo) CreateAccounts(ctx context.Context, accounts []types.TrackedAccount) (int, error) {
	if len(accounts) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(accounts))
	for i := range accounts {
		if accounts[i].CreatedAt.IsZero() {
			accounts[i].CreatedAt = now
		}
		docs = append(docs, accounts[i])
	}
	// Unordered insert: duplicates are skipped, the rest land.
	res, err := m.db.Collection(colAccounts).InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	inserted := 0
	if res != nil {
		inserted = len(res.InsertedIDs)
	}
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return inserted, fmt.Errorf("bulk insert accounts: %w", err)
	}
	return inserted, nil
}

func (m *Mongo) GetAccount(ctx context.Context, handle string) (*types.TrackedAccount, error) {
	var a types.TrackedAccount
	err := m.db.Collection(colAccounts).FindOne(ctx, bson.M{"handle": handle}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	return &a, nil
}

func (m *Mongo) ListAccounts(ctx context.Context) ([]types.TrackedAccount, error) {
	return m.listAccounts(ctx, bson.M{})
}

func (m *Mongo) ListActiveAccounts(ctx context.Context) ([]types.TrackedAccount, error) {
	return m.listAccounts(ctx, bson.M{"active": true})
}

func (m *Mongo) listAccounts(ctx context.Context, filter bson.M) ([]types.TrackedAccount, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "handle", Value: 1}})
	cur, err := m.db.Collection(colAccounts).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	var accounts []types.TrackedAccount
	if err := cur.All(ctx, &accounts); err != nil {
		return nil, fmt.Errorf("decode accounts: %w", err)
	}
	return accounts, nil
}

func (m *Mongo) UpdateAccount(ctx context.Context, a *types.TrackedAccount) error {
	res, err := m.db.Collection(colAccounts).ReplaceOne(ctx, bson.M{"handle": a.Handle}, a)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) DeleteAccount(ctx context.Context, handle string) error {
	res, err := m.db.Collection(colAccounts).DeleteOne(ctx, bson.M{"handle": handle})
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) InsertRawPost(ctx context.Context, p *types.RawPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = types.PostStatusUnprocessed
	}
	_, err := m.db.Collection(colRawPosts).InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert raw post: %w", err)
	}
	return nil
}

func (m *Mongo) HasRawPost(ctx context.Context, postID string) (bool, error) {
	n, err := m.db.Collection(colRawPosts).CountDocuments(ctx, bson.M{"post_id": postID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count raw post: %w", err)
	}
	return n > 0, nil
}

func (m *Mongo) ListRawPostIDs(ctx context.Context) (map[string]struct{}, error) {
	opts := options.Find().SetProjection(bson.M{"post_id": 1})
	cur, err := m.db.Collection(colRawPosts).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list raw post ids: %w", err)
	}
	defer cur.Close(ctx)

	ids := make(map[string]struct{})
	for cur.Next(ctx) {
		var doc struct {
			PostID string `bson:"post_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode raw post id: %w", err)
		}
		ids[doc.PostID] = struct{}{}
	}
	return ids, cur.Err()
}

func (m *Mongo) ListUnprocessed(ctx context.Context, limit int) ([]types.RawPost, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cur, err := m.db.Collection(colRawPosts).Find(ctx, bson.M{"status": types.PostStatusUnprocessed}, opts)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed: %w", err)
	}
	var posts []types.RawPost
	if err := cur.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("decode unprocessed: %w", err)
	}
	return posts, nil
}

func (m *Mongo) SetRawPostStatus(ctx context.Context, postID string, status types.PostStatus) error {
	res, err := m.db.Collection(colRawPosts).UpdateOne(ctx,
		bson.M{"post_id": postID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("set raw post status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) InsertClassifiedPost(ctx context.Context, p *types.ClassifiedPost) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := m.db.Collection(colClassified).InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert classified post: %w", err)
	}
	return nil
}

func (m *Mongo) GetOrCreateCursor(ctx context.Context, name string) (*types.SchedulerCursor, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var c types.SchedulerCursor
	err := m.db.Collection(colCursors).FindOneAndUpdate(ctx,
		bson.M{"name": name},
		bson.M{"$setOnInsert": bson.M{"name": name, "last_index": 0}},
		opts,
	).Decode(&c)
	if err != nil {
		return nil, fmt.Errorf("get or create cursor: %w", err)
	}
	return &c, nil
}

func (m *Mongo) SaveCursor(ctx context.Context, c *types.SchedulerCursor) error {
	_, err := m.db.Collection(colCursors).UpdateOne(ctx,
		bson.M{"name": c.Name},
		bson.M{"$set": bson.M{"last_index": c.LastIndex}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
