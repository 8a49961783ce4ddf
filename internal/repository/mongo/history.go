// Package mongo persists play history in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"torrserve/internal/domain"
)

const (
	historyCollection  = "play_history"
	defaultRecentLimit = 20
)

type playRecordDoc struct {
	ID        string `bson:"_id"`
	Hash      string `bson:"hash"`
	FileIndex int    `bson:"fileIndex"`
	Title     string `bson:"title"`
	Poster    string `bson:"poster,omitempty"`
	FilePath  string `bson:"filePath"`
	PlayURL   string `bson:"playUrl"`
	UpdatedAt int64  `bson:"updatedAt"`
}

// Connect opens a client; extra options such as an otelmongo monitor are
// applied after the URI.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	return mongo.Connect(ctx, opts...)
}

type HistoryRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewHistoryRepository(client *mongo.Client, dbName string) *HistoryRepository {
	return &HistoryRepository{
		collection: client.Database(dbName).Collection(historyCollection),
		now:        time.Now,
	}
}

func historyDocID(hash string, fileIndex int) string {
	return fmt.Sprintf("%s:%d", hash, fileIndex)
}

// EnsureIndexes creates the recency index used by ListRecent.
func (r *HistoryRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "updatedAt", Value: -1}},
	})
	return err
}

// Upsert records that a file was played, replacing any earlier entry for
// the same hash and file.
func (r *HistoryRepository) Upsert(ctx context.Context, rec domain.PlayRecord) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now()
	}
	update := bson.M{
		"$set": bson.M{
			"hash":      rec.Hash,
			"fileIndex": rec.FileIndex,
			"title":     rec.Title,
			"poster":    rec.Poster,
			"filePath":  rec.FilePath,
			"playUrl":   rec.PlayURL,
			"updatedAt": updatedAt.Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": historyDocID(rec.Hash, rec.FileIndex)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *HistoryRepository) Get(ctx context.Context, hash string, fileIndex int) (domain.PlayRecord, error) {
	var doc playRecordDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": historyDocID(hash, fileIndex)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.PlayRecord{}, domain.ErrNotFound
		}
		return domain.PlayRecord{}, err
	}
	return docToRecord(doc), nil
}

// ListRecent returns the most recently played entries first.
func (r *HistoryRepository) ListRecent(ctx context.Context, limit int) ([]domain.PlayRecord, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []playRecordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	records := make([]domain.PlayRecord, 0, len(docs))
	for _, doc := range docs {
		records = append(records, docToRecord(doc))
	}
	return records, nil
}

func docToRecord(doc playRecordDoc) domain.PlayRecord {
	return domain.PlayRecord{
		Hash:      doc.Hash,
		FileIndex: doc.FileIndex,
		Title:     doc.Title,
		Poster:    doc.Poster,
		FilePath:  doc.FilePath,
		PlayURL:   doc.PlayURL,
		UpdatedAt: time.Unix(doc.UpdatedAt, 0).UTC(),
	}
}
