package action

import (
	"context"
	stdErrors "errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	xerrors "Parry-QV/internal/errors"
)

// MongoConfig 描述 MongoDB 存储的连接参数。
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MongoStore 使用 MongoDB 文档记录动作状态。
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoStore 连接 MongoDB 并确保索引存在。
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MongoDB URI 不能为空")
	}
	database := cfg.Database
	if database == "" {
		database = "parryqv"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "actions"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MongoDB 失败")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MongoDB")
	}
	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		{Keys: bson.D{{Key: "project", Value: 1}, {Key: "kind", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建 MongoDB 索引失败")
	}
	return &MongoStore{client: client, collection: coll, now: time.Now}, nil
}

// Create 插入新的动作文档。
func (s *MongoStore) Create(ctx context.Context, action *Action) error {
	if action == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "action 不能为空")
	}
	if strings.TrimSpace(action.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "动作 ID 不能为空")
	}
	now := s.now().Unix()
	action.CreatedAt = now
	action.UpdatedAt = now
	if action.Status == "" {
		action.Status = StatusIdle
	}
	if _, err := s.collection.InsertOne(ctx, action); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrActionConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入动作失败")
	}
	return nil
}

// Get 查询指定动作。
func (s *MongoStore) Get(ctx context.Context, id string) (*Action, error) {
	var action Action
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&action); err != nil {
		if stdErrors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrActionNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询动作失败")
	}
	return &action, nil
}

// Claim 将 idle 动作标记为 validating。
func (s *MongoStore) Claim(ctx context.Context, id string) (*Action, error) {
	var action Action
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": StatusIdle},
		bson.M{"$set": bson.M{"status": StatusValidating, "updated_at": s.now().Unix()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&action)
	if err == nil {
		return &action, nil
	}
	if !stdErrors.Is(err, mongo.ErrNoDocuments) {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新动作状态失败")
	}
	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status.Terminal() {
		return current, ErrActionFinished
	}
	return current, ErrActionConflict
}

// Transition 更新动作的中间状态。
func (s *MongoStore) Transition(ctx context.Context, id string, status Status) error {
	if !status.InFlight() {
		return xerrors.New(xerrors.CodeInvalidArgument, "非法的中间状态: "+string(status))
	}
	return s.update(ctx, id, bson.M{"status": status, "updated_at": s.now().Unix()}, nil)
}

// MarkConfirmed 记录成功结果。
func (s *MongoStore) MarkConfirmed(ctx context.Context, id string, result Result) error {
	return s.update(ctx, id, bson.M{
		"status":     StatusConfirmed,
		"result":     result,
		"updated_at": s.now().Unix(),
	}, bson.M{"error_code": "", "last_error": ""})
}

// MarkFailed 记录失败原因。
func (s *MongoStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, message string) error {
	return s.update(ctx, id, bson.M{
		"status":     StatusFailed,
		"error_code": string(code),
		"last_error": message,
		"updated_at": s.now().Unix(),
	}, nil)
}

func (s *MongoStore) update(ctx context.Context, id string, set, unset bson.M) error {
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": []Status{StatusConfirmed, StatusFailed}}},
		update)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新动作失败")
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return ErrActionFinished
}

// List 返回符合过滤条件的动作。
func (s *MongoStore) List(ctx context.Context, opts ListOptions) ([]*Action, error) {
	opts.applyDefaults()
	direction := -1
	if opts.Order == SortByUpdatedAsc {
		direction = 1
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: direction}, {Key: "created_at", Value: direction}}).
		SetSkip(int64(opts.Offset)).
		SetLimit(int64(opts.Limit))
	cursor, err := s.collection.Find(ctx, mongoFilter(opts), findOpts)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询动作列表失败")
	}
	defer cursor.Close(ctx)

	actions := make([]*Action, 0, opts.Limit)
	for cursor.Next(ctx) {
		var action Action
		if err := cursor.Decode(&action); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析动作失败")
		}
		actions = append(actions, &action)
	}
	if err := cursor.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历动作失败")
	}
	return actions, nil
}

// Stats 汇总符合过滤条件的动作数量。
func (s *MongoStore) Stats(ctx context.Context, opts ListOptions) (Stats, error) {
	opts.applyDefaults()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: mongoFilter(opts)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "kind", Value: "$kind"}, {Key: "status", Value: "$status"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "oldest", Value: bson.D{{Key: "$min", Value: "$updated_at"}}},
			{Key: "newest", Value: bson.D{{Key: "$max", Value: "$updated_at"}}},
		}}},
	}
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "统计动作失败")
	}
	defer cursor.Close(ctx)

	var stats Stats
	for cursor.Next(ctx) {
		var group struct {
			ID struct {
				Kind   Kind   `bson:"kind"`
				Status Status `bson:"status"`
			} `bson:"_id"`
			Count  int   `bson:"count"`
			Oldest int64 `bson:"oldest"`
			Newest int64 `bson:"newest"`
		}
		if err := cursor.Decode(&group); err != nil {
			return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析统计结果失败")
		}
		stats.add(group.ID.Kind, group.ID.Status, group.Count)
		stats.touch(group.Oldest)
		stats.touch(group.Newest)
	}
	if err := cursor.Err(); err != nil {
		return Stats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历统计结果失败")
	}
	return stats, nil
}

// Close 断开 MongoDB 连接。
func (s *MongoStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoFilter(opts ListOptions) bson.M {
	filter := bson.M{}
	if len(opts.Statuses) > 0 {
		filter["status"] = bson.M{"$in": opts.Statuses}
	}
	if len(opts.Kinds) > 0 {
		filter["kind"] = bson.M{"$in": opts.Kinds}
	}
	if opts.Project != "" {
		filter["project"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(opts.Project) + "$", Options: "i"}
	}
	updated := bson.M{}
	if opts.UpdatedGTE > 0 {
		updated["$gte"] = opts.UpdatedGTE
	}
	if opts.UpdatedLTE > 0 {
		updated["$lte"] = opts.UpdatedLTE
	}
	if len(updated) > 0 {
		filter["updated_at"] = updated
	}
	return filter
}
