package mongo

import (
	"context"

	"github.com/alumnihub/chat/instance"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var ErrNoDocuments = mongo.ErrNoDocuments

func New(ctx context.Context, opt SetupOptions) (instance.Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opt.URI).SetDirect(opt.Direct))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	database := client.Database(opt.Database)

	logrus.WithField("database", opt.Database).Info("mongo, ok")

	return &MongoInst{
		client: client,
		db:     database,
	}, nil
}

// SetupOptions configures the connection. Live subscriptions use change streams,
// which need the server to run as a replica set.
type SetupOptions struct {
	URI      string
	Database string
	Direct   bool
}

type (
	Pipeline   = mongo.Pipeline
	IndexModel = mongo.IndexModel
)

// EnsureIndexes creates indexes on a collection, existing ones are left alone.
func EnsureIndexes(ctx context.Context, inst instance.Mongo, name instance.CollectionName, indexes []IndexModel) error {
	if len(indexes) == 0 {
		return nil
	}
	_, err := inst.Collection(name).Indexes().CreateMany(ctx, indexes)
	return err
}
