package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLeadStore 基于MongoDB的线索存储，同时实现LeadStore与ClaimStore
type MongoLeadStore struct {
	coll         *mongo.Collection
	pollInterval time.Duration
	txSupported  bool
}

// NewMongoLeadStore 创建线索存储。pollInterval为不支持change stream时的轮询间隔。
func NewMongoLeadStore(database *mongo.Database, pollInterval time.Duration) *MongoLeadStore {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &MongoLeadStore{
		coll:         database.Collection(LeadsCollection),
		pollInterval: pollInterval,
		txSupported:  SupportsTransactions(database),
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return objID, nil
}

// Get 根据ID获取线索
func (s *MongoLeadStore) Get(ctx context.Context, id string) (*models.Lead, error) {
	objID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var lead models.Lead
	err = s.coll.FindOne(ctx, bson.M{"_id": objID}).Decode(&lead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// buildLeadFilter 构建查询条件
func buildLeadFilter(query LeadQuery) bson.M {
	filter := bson.M{}
	if query.ActiveOnly {
		filter["isActive"] = true
	}
	if query.Stage != "" {
		filter["stage"] = query.Stage
	}
	if cats := categoryFilter(query.Categories); len(cats) > 0 {
		filter["category"] = bson.M{"$in": cats}
	}
	if query.Tier != "" {
		filter["tier"] = query.Tier
	}
	if query.ClaimedBy != "" {
		filter["claimedBy"] = query.ClaimedBy
	}
	// 关键词搜索 - 名称或联系人
	if query.Keyword != "" {
		pattern := regexp.QuoteMeta(query.Keyword)
		filter["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"contactName": bson.M{"$regex": pattern, "$options": "i"}},
		}
	}
	return filter
}

// categoryFilter 去掉"all"，空结果表示不筛选类别
func categoryFilter(categories []string) []string {
	var result []string
	for _, c := range categories {
		if c == "" || c == models.CategoryAll {
			return nil
		}
		result = append(result, c)
	}
	return result
}

// List 查询线索，按创建时间正序
func (s *MongoLeadStore) List(ctx context.Context, query LeadQuery) ([]models.Lead, error) {
	filter := buildLeadFilter(query)
	utils.LogDbOperation("find", LeadsCollection, filter, nil)

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	leads := []models.Lead{}
	if err := cursor.All(ctx, &leads); err != nil {
		return nil, err
	}
	return leads, nil
}

// Create 创建线索
func (s *MongoLeadStore) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	created := *lead
	if created.ID.IsZero() {
		created.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, created); err != nil {
		return nil, err
	}
	return &created, nil
}

// leadUpdateSet 将部分更新转换为$set文档
func leadUpdateSet(update LeadUpdate) bson.M {
	set := bson.M{"updatedAt": update.UpdatedAt}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.ContactName != nil {
		set["contactName"] = *update.ContactName
	}
	if update.Category != nil {
		set["category"] = *update.Category
	}
	if update.Tier != nil {
		set["tier"] = *update.Tier
	}
	if update.Stage != nil {
		set["stage"] = *update.Stage
	}
	if update.Phone != nil {
		set["phone"] = *update.Phone
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Notes != nil {
		set["notes"] = *update.Notes
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}
	if update.NextFollowUpAt != nil {
		set["nextFollowUpAt"] = *update.NextFollowUpAt
	}
	if update.LastContactedAt != nil {
		set["lastContactedAt"] = *update.LastContactedAt
	}
	return set
}

// Update 部分更新线索并返回更新后的文档
func (s *MongoLeadStore) Update(ctx context.Context, id string, update LeadUpdate) (*models.Lead, error) {
	objID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var lead models.Lead
	err = s.coll.FindOneAndUpdate(ctx, bson.M{"_id": objID}, bson.M{"$set": leadUpdateSet(update)}, opts).Decode(&lead)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lead, nil
}

// Delete 硬删除线索，不可恢复
func (s *MongoLeadStore) Delete(ctx context.Context, id string) error {
	objID, err := parseID(id)
	if err != nil {
		return err
	}
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// AcquireClaim 条件占用：未占用、本人占用或已过期时写入
func (s *MongoLeadStore) AcquireClaim(ctx context.Context, leadID, callerID string, now, staleBefore time.Time) (*models.Lead, error) {
	objID, err := parseID(leadID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"_id": objID,
		"$or": bson.A{
			bson.M{"claimedBy": bson.M{"$in": bson.A{"", nil, callerID}}},
			bson.M{"claimedAt": nil},
			bson.M{"claimedAt": bson.M{"$lte": staleBefore}},
		},
	}
	update := bson.M{"$set": bson.M{"claimedBy": callerID, "claimedAt": now}}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var lead models.Lead
	err = s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&lead)
	if err == nil {
		return &lead, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	// 区分线索不存在与被他人占用
	if _, getErr := s.Get(ctx, leadID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrClaimConflict
}

// RenewClaim 刷新本人持有的占用
func (s *MongoLeadStore) RenewClaim(ctx context.Context, leadID, callerID string, now time.Time) (*models.Lead, error) {
	objID, err := parseID(leadID)
	if err != nil {
		return nil, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var lead models.Lead
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": objID, "claimedBy": callerID},
		bson.M{"$set": bson.M{"claimedAt": now}},
		opts,
	).Decode(&lead)
	if err == nil {
		return &lead, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, getErr := s.Get(ctx, leadID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrNotClaimOwner
}

// ReleaseClaim 释放本人持有的占用，他人占用或未占用时不做修改
func (s *MongoLeadStore) ReleaseClaim(ctx context.Context, leadID, callerID string) (bool, error) {
	objID, err := parseID(leadID)
	if err != nil {
		return false, err
	}

	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": objID, "claimedBy": callerID},
		bson.M{"$set": bson.M{"claimedBy": ""}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount > 0, nil
}

// ClearExpiredClaims 清理过期占用字段
func (s *MongoLeadStore) ClearExpiredClaims(ctx context.Context, staleBefore time.Time) (int64, error) {
	result, err := s.coll.UpdateMany(ctx,
		bson.M{
			"claimedBy": bson.M{"$nin": bson.A{"", nil}},
			"$or": bson.A{
				bson.M{"claimedAt": nil},
				bson.M{"claimedAt": bson.M{"$lte": staleBefore}},
			},
		},
		bson.M{"$set": bson.M{"claimedBy": ""}, "$unset": bson.M{"claimedAt": ""}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Watch 监听线索集合变更。优先使用change stream，单机部署退化为定时轮询。
func (s *MongoLeadStore) Watch(ctx context.Context) (<-chan struct{}, error) {
	signals := make(chan struct{}, 1)

	stream, err := s.coll.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		utils.Logger.Warn().Err(err).Dur("interval", s.pollInterval).Msg("change stream不可用，改为轮询")
		go s.poll(ctx, signals)
		return signals, nil
	}

	go func() {
		defer close(signals)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			notify(signals)
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			utils.Logger.Error().Err(err).Msg("线索change stream中断")
		}
	}()
	return signals, nil
}

func (s *MongoLeadStore) poll(ctx context.Context, signals chan struct{}) {
	defer close(signals)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify(signals)
		}
	}
}

// notify 非阻塞发送，已有未消费信号时合并
func notify(signals chan struct{}) {
	select {
	case signals <- struct{}{}:
	default:
	}
}

// WithinTransaction 在多文档事务中执行fn
func (s *MongoLeadStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.txSupported {
		return ErrTransactionsUnsupported
	}

	session, err := s.coll.Database().Client().StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
