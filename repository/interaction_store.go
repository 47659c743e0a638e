package repository

import (
	"context"
	"time"

	"github.com/BerniceZTT/dialer_end/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoInteractionStore 基于MongoDB的互动记录存储
type MongoInteractionStore struct {
	coll *mongo.Collection
}

// NewMongoInteractionStore 创建互动记录存储
func NewMongoInteractionStore(database *mongo.Database) *MongoInteractionStore {
	return &MongoInteractionStore{coll: database.Collection(InteractionsCollection)}
}

// Append 追加互动记录
func (s *MongoInteractionStore) Append(ctx context.Context, interaction *models.Interaction) (*models.Interaction, error) {
	record := *interaction
	if record.ID.IsZero() {
		record.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByLead 获取线索的互动记录，按创建时间倒序，作废记录不返回
func (s *MongoInteractionStore) ListByLead(ctx context.Context, leadID string) ([]models.Interaction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := s.coll.Find(ctx, bson.M{"leadId": leadID, "abandoned": bson.M{"$ne": true}}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.Interaction{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *MongoInteractionStore) setFlags(ctx context.Context, id string, set bson.M) error {
	objID, err := parseID(id)
	if err != nil {
		return err
	}
	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": objID, "pending": true}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Confirm 确认pending记录
func (s *MongoInteractionStore) Confirm(ctx context.Context, id string) error {
	return s.setFlags(ctx, id, bson.M{"pending": false})
}

// Abandon 作废pending记录
func (s *MongoInteractionStore) Abandon(ctx context.Context, id string) error {
	return s.setFlags(ctx, id, bson.M{"pending": false, "abandoned": true})
}

// CountOutcomes 统计坐席自since以来各结果标签的数量，actorID为空时统计全部
func (s *MongoInteractionStore) CountOutcomes(ctx context.Context, actorID string, since time.Time) (map[models.Outcome]int64, error) {
	match := bson.M{
		"outcome":   bson.M{"$exists": true, "$ne": ""},
		"createdAt": bson.M{"$gte": since},
	}
	if actorID != "" {
		match["actorId"] = actorID
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$outcome", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Outcome models.Outcome `bson:"_id"`
		Count   int64          `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	counts := make(map[models.Outcome]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Count
	}
	return counts, nil
}
