package mongodb

import (
	"context"
	"iotflow/conf"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var mongoClient *mongo.Client

// InitMongo 初始化mongo客户端
func InitMongo(cfg conf.MongoConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		panic(err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		panic(err)
	}
	mongoClient = client
}

func GetMongoClient() *mongo.Client {
	if nil == mongoClient {
		panic("Please initialize the Mongo client first!")
	}
	return mongoClient
}

func CloseMongo() {
	if nil != mongoClient {
		_ = mongoClient.Disconnect(context.Background())
	}
}

// DocWriter 向指定集合写入一条文档，计算结果按规则分集合落库
type DocWriter interface {
	InsertOne(ctx context.Context, collection string, doc interface{}) error
}

type docWriter struct {
	client   *mongo.Client
	database string
}

func NewDocWriter(client *mongo.Client, database string) DocWriter {
	return &docWriter{client: client, database: database}
}

func (w *docWriter) InsertOne(ctx context.Context, collection string, doc interface{}) error {
	_, err := w.client.Database(w.database).Collection(collection).InsertOne(ctx, doc)
	return err
}
