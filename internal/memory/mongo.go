package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	chatCollection = "chat_history"
	newsCollection = "f1_news"
)

// MongoStore persists turns and news in MongoDB.
type MongoStore struct {
	client *mongo.Client
	chat   *mongo.Collection
	news   *mongo.Collection
}

type chatDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	Message     string    `bson:"message"`
	Response    string    `bson:"response"`
	PIIRedacted bool      `bson:"pii_redacted"`
	CreatedAt   time.Time `bson:"created_at"`
}

type newsDoc struct {
	ID          string     `bson:"_id"`
	Title       string     `bson:"title"`
	Link        string     `bson:"link"`
	Summary     string     `bson:"summary,omitempty"`
	Source      string     `bson:"source"`
	PublishedAt *time.Time `bson:"published_at,omitempty"`
	Rank        int        `bson:"rank"`
	CreatedAt   time.Time  `bson:"created_at"`
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if strings.TrimSpace(database) == "" {
		database = "pitwall"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		chat:   db.Collection(chatCollection),
		news:   db.Collection(newsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.chat.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create chat index: %w", err)
	}
	if _, err := s.news.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "title", Value: 1}, {Key: "link", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "rank", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create news indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, turn ChatTurn) error {
	turn, err := prepareTurn(turn)
	if err != nil {
		return err
	}
	_, err = s.chat.InsertOne(ctx, chatDoc{
		ID:          turn.ID,
		UserID:      turn.UserID,
		Message:     turn.Message,
		Response:    turn.Response,
		PIIRedacted: turn.PIIRedacted,
		CreatedAt:   turn.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert chat turn: %w", err)
	}
	return nil
}

func (s *MongoStore) ListRecent(ctx context.Context, userID string, limit int) ([]ChatTurn, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(clampLimit(limit, 10)))

	cursor, err := s.chat.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("query chat turns: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode chat turns: %w", err)
	}
	out := make([]ChatTurn, 0, len(docs))
	for _, d := range docs {
		out = append(out, ChatTurn{
			ID:          d.ID,
			UserID:      d.UserID,
			Message:     d.Message,
			Response:    d.Response,
			PIIRedacted: d.PIIRedacted,
			CreatedAt:   d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *MongoStore) AppendNews(ctx context.Context, items []NewsItem) ([]NewsItem, error) {
	prepared := prepareNews(items)
	if len(prepared) == 0 {
		return nil, nil
	}

	models := make([]mongo.WriteModel, 0, len(prepared))
	for _, it := range prepared {
		doc := newsDoc{
			ID:        it.ID,
			Title:     it.Title,
			Link:      it.Link,
			Summary:   it.Summary,
			Source:    it.Source,
			Rank:      it.Rank,
			CreatedAt: it.CreatedAt,
		}
		if !it.PublishedAt.IsZero() {
			p := it.PublishedAt
			doc.PublishedAt = &p
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": it.ID}).
			SetUpdate(bson.M{"$setOnInsert": doc}).
			SetUpsert(true))
	}

	res, err := s.news.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, fmt.Errorf("upsert news: %w", err)
	}
	var added []NewsItem
	for i, it := range prepared {
		if _, ok := res.UpsertedIDs[int64(i)]; ok {
			added = append(added, it)
		}
	}
	return added, nil
}

func (s *MongoStore) LatestNews(ctx context.Context, limit int) ([]NewsItem, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "rank", Value: 1}}).
		SetLimit(int64(clampLimit(limit, 10)))

	cursor, err := s.news.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []newsDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	out := make([]NewsItem, 0, len(docs))
	for _, d := range docs {
		it := NewsItem{
			ID:        d.ID,
			Title:     d.Title,
			Link:      d.Link,
			Summary:   d.Summary,
			Source:    d.Source,
			Rank:      d.Rank,
			CreatedAt: d.CreatedAt.UTC(),
		}
		if d.PublishedAt != nil {
			it.PublishedAt = d.PublishedAt.UTC()
		}
		out = append(out, it)
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Kind() string { return "mongo" }

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
