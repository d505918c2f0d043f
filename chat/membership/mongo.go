package membership

import (
	"context"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/svc/mongo"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOracle reads the community membership records.
type MongoOracle struct {
	coll    *mongodrv.Collection
	changes instance.Redis
}

func NewMongoOracle(inst instance.Mongo) *MongoOracle {
	return &MongoOracle{coll: inst.Collection(mongo.CollectionNameCommunityMembers)}
}

// Indexes are the indexes RoleOf and Upsert rely on.
func (o *MongoOracle) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{{
		Keys:    bson.D{{Key: "community_id", Value: 1}, {Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("community_user_uidx"),
	}}
}

// RoleOf returns guest when the user has no record in the community.
func (o *MongoOracle) RoleOf(ctx context.Context, communityID, userID string) (structures.Membership, error) {
	var m structures.Membership
	err := o.coll.FindOne(ctx, bson.M{"community_id": communityID, "user_id": userID}).Decode(&m)
	if err == mongo.ErrNoDocuments {
		return structures.Guest(communityID, userID), nil
	}
	if err != nil {
		return structures.Membership{}, errors.Transient(err)
	}
	if !m.Role.Valid() {
		m.Role = structures.RoleGuest
	}
	return m, nil
}

// NotifyChanges makes Upsert publish on RoleChangedChannel through r.
func (o *MongoOracle) NotifyChanges(r instance.Redis) {
	o.changes = r
}

// Upsert writes a membership record. Membership management itself lives outside
// the chat core; this exists for seeding and for hosts that own both. Other
// writers of the collection call PublishRoleChange themselves.
func (o *MongoOracle) Upsert(ctx context.Context, m structures.Membership) error {
	_, err := o.coll.UpdateOne(ctx,
		bson.M{"community_id": m.CommunityID, "user_id": m.UserID},
		bson.M{"$set": m},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return errors.Transient(err)
	}
	if o.changes != nil {
		return errors.Transient(PublishRoleChange(ctx, o.changes, m.CommunityID, m.UserID))
	}
	return nil
}
