package repository

import (
	"context"

	"github.com/BerniceZTT/dialer_end/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoOperationLogStore 操作日志存储
type MongoOperationLogStore struct {
	coll *mongo.Collection
}

// NewMongoOperationLogStore 创建操作日志存储
func NewMongoOperationLogStore(database *mongo.Database) *MongoOperationLogStore {
	return &MongoOperationLogStore{coll: database.Collection(ApiOperationLogsCollection)}
}

// Save 写入一条操作日志
func (s *MongoOperationLogStore) Save(ctx context.Context, log *models.OperationLog) error {
	_, err := s.coll.InsertOne(ctx, log)
	return err
}
