package messages

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alumnihub/chat/errors"
	"github.com/alumnihub/chat/instance"
	"github.com/alumnihub/chat/structures"
	"github.com/alumnihub/chat/svc/mongo"
	"github.com/alumnihub/chat/utils/live"
	"go.mongodb.org/mongo-driver/bson"
	mongodrv "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository stores messages in the "chat_messages" collection. Live feeds
// are change streams, so the server has to run as a replica set.
type MongoRepository struct {
	coll *mongodrv.Collection
}

func NewMongoRepository(inst instance.Mongo) *MongoRepository {
	return &MongoRepository{coll: inst.Collection(mongo.CollectionNameMessages)}
}

func (r *MongoRepository) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "reaction_count", Value: -1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "author_id", Value: 1}}},
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "is_pinned", Value: 1}}},
		{Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "thread_id", Value: 1}}},
		{
			Keys: bson.D{{Key: "community_id", Value: 1}, {Key: "author_id", Value: 1}, {Key: "client_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("client_id_uidx").
				SetPartialFilterExpression(bson.M{"client_id": bson.M{"$type": "string"}}),
		},
	}
}

func (r *MongoRepository) Insert(ctx context.Context, m *structures.ChatMessage) error {
	normalize(m)
	_, err := r.coll.InsertOne(ctx, m)
	if mongodrv.IsDuplicateKeyError(err) && m.ClientID != "" {
		return errDuplicateClientID
	}
	return errors.Transient(err)
}

func (r *MongoRepository) FindByID(ctx context.Context, id string) (*structures.ChatMessage, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) FindByClientID(ctx context.Context, communityID, authorID, clientID string) (*structures.ChatMessage, error) {
	return r.findOne(ctx, bson.M{"community_id": communityID, "author_id": authorID, "client_id": clientID})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*structures.ChatMessage, error) {
	m := &structures.ChatMessage{}
	err := r.coll.FindOne(ctx, filter).Decode(m)
	if err == mongo.ErrNoDocuments {
		return nil, errors.ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Transient(err)
	}
	normalize(m)
	return m, nil
}

func (r *MongoRepository) Find(ctx context.Context, communityID string, q Query) ([]structures.ChatMessage, error) {
	s := q.Sort.Normalize()
	filter := buildFilter(communityID, q.Filter)
	if q.After != nil {
		filter["$or"] = cursorFilter(q.After, s)
	}

	opts := options.Find().SetSort(sortSpec(s))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Transient(err)
	}

	out := []structures.ChatMessage{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, errors.Transient(err)
	}
	for i := range out {
		normalize(&out[i])
	}
	return out, nil
}

func (r *MongoRepository) CountPinned(ctx context.Context, communityID string) (int, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"community_id": communityID, "is_pinned": true})
	if err != nil {
		return 0, errors.Transient(err)
	}
	return int(n), nil
}

// updateOne reports ErrMessageNotFound when nothing matched the id.
func (r *MongoRepository) updateOne(ctx context.Context, id string, update interface{}) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Transient(err)
	}
	if res.MatchedCount == 0 {
		return errors.ErrMessageNotFound
	}
	return nil
}

// conditional runs a guarded update. When the guard rejects the write it
// tells a missing message apart from a failed guard.
func (r *MongoRepository) conditional(ctx context.Context, id string, guard bson.M, update interface{}) (bool, error) {
	guard["_id"] = id
	res, err := r.coll.UpdateOne(ctx, guard, update)
	if err != nil {
		return false, errors.Transient(err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *MongoRepository) Edit(ctx context.Context, id string, e Edit) error {
	set := bson.M{
		"searchable_content": e.SearchableContent,
		"is_edited":          true,
		"edited_at":          e.EditedAt,
		"updated_at":         e.EditedAt,
	}
	if e.Content != nil {
		set["content"] = *e.Content
	}
	if e.RenderedContent != nil {
		set["rendered_content"] = *e.RenderedContent
	}
	if e.Tags != nil {
		set["tags"] = nonNil(*e.Tags)
	}
	if e.Mentions != nil {
		mentions := append([]structures.Mention{}, (*e.Mentions)...)
		set["mentions"] = mentions
		set["has_mentions"], set["mentions_everyone"] = structures.MentionFlags(mentions)
	}
	return r.updateOne(ctx, id, bson.M{"$set": set})
}

func (r *MongoRepository) SoftDelete(ctx context.Context, id, by string, at time.Time) error {
	_, err := r.conditional(ctx, id, bson.M{"is_deleted": false}, bson.M{"$set": bson.M{
		"is_deleted": true,
		"deleted_at": at,
		"deleted_by": by,
		"status":     structures.MessageStatusDeleted,
		"updated_at": at,
	}})
	return err
}

func (r *MongoRepository) SetPinned(ctx context.Context, id string, pinned bool, by string, at time.Time) error {
	if pinned {
		return r.updateOne(ctx, id, bson.M{"$set": bson.M{
			"is_pinned":  true,
			"pinned_by":  by,
			"pinned_at":  at,
			"updated_at": at,
		}})
	}
	return r.updateOne(ctx, id, bson.M{
		"$set":   bson.M{"is_pinned": false, "updated_at": at},
		"$unset": bson.M{"pinned_by": "", "pinned_at": ""},
	})
}

func (r *MongoRepository) AddBookmark(ctx context.Context, id, userID string) error {
	return r.updateOne(ctx, id, bson.M{"$addToSet": bson.M{"bookmarked_by": userID}})
}

func (r *MongoRepository) RemoveBookmark(ctx context.Context, id, userID string) error {
	return r.updateOne(ctx, id, bson.M{"$pull": bson.M{"bookmarked_by": userID}})
}

// PushReaction only matches while the list is below max and does not hold the
// reaction id yet, so the cap and the counter move in one atomic write.
func (r *MongoRepository) PushReaction(ctx context.Context, id string, reaction structures.MessageReaction, max int) error {
	guard := bson.M{"reactions.id": bson.M{"$ne": reaction.ID}}
	if max > 0 {
		guard[fmt.Sprintf("reactions.%d", max-1)] = bson.M{"$exists": false}
	}

	ok, err := r.conditional(ctx, id, guard, bson.M{
		"$push": bson.M{"reactions": reaction},
		"$inc":  bson.M{"reaction_count": 1},
	})
	if err != nil || ok {
		return err
	}

	m, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	for _, v := range m.Reactions {
		if v.ID == reaction.ID {
			return nil
		}
	}
	return errors.ErrReactionLimit
}

func (r *MongoRepository) PullReaction(ctx context.Context, id, reactionID string) error {
	return r.updateOne(ctx, id, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"reactions": bson.M{"$filter": bson.M{
			"input": bson.M{"$ifNull": bson.A{"$reactions", bson.A{}}},
			"cond":  bson.M{"$ne": bson.A{"$$this.id", reactionID}},
		}}}}},
		{{Key: "$set", Value: bson.M{"reaction_count": bson.M{"$size": "$reactions"}}}},
	})
}

func (r *MongoRepository) Report(ctx context.Context, id, userID, reason string) error {
	return r.updateOne(ctx, id, bson.M{
		"$set": bson.M{"is_reported": true, "flagged_reason": reason},
		"$inc": bson.M{"report_count": 1},
	})
}

func (r *MongoRepository) Hide(ctx context.Context, id, by, reason string) error {
	return r.updateOne(ctx, id, bson.M{"$set": bson.M{
		"is_hidden":     true,
		"hidden_by":     by,
		"hidden_reason": reason,
	}})
}

// IncrementReplies also starts the thread at the parent when it has none.
func (r *MongoRepository) IncrementReplies(ctx context.Context, id string) error {
	threadID := bson.M{"$ifNull": bson.A{"$thread_id", ""}}
	return r.updateOne(ctx, id, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"reply_count":       bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$reply_count", 0}}, 1}},
			"is_thread_starter": true,
			"thread_id":         bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{threadID, ""}}, "$_id", "$thread_id"}},
		}}},
	})
}

func (r *MongoRepository) MarkAttachmentReady(ctx context.Context, id, attachmentID, url string, scanned bool) error {
	ok, err := r.conditional(ctx, id, bson.M{"attachments.id": attachmentID}, bson.M{"$set": bson.M{
		"attachments.$.url":           url,
		"attachments.$.is_processing": false,
		"attachments.$.is_scanned":    scanned,
	}})
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrAttachmentNotFound
	}
	return nil
}

// Watch ticks on every insert or update in the community. A change stream that
// dies while ctx is still live ends the feed with a transient error.
func (r *MongoRepository) Watch(ctx context.Context, communityID string) (<-chan live.Signal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"operationType":            bson.M{"$in": bson.A{"insert", "update", "replace"}},
			"fullDocument.community_id": communityID,
		}}},
	}
	cs, err := r.coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, errors.Transient(err)
	}

	ch := make(chan live.Signal, 1)
	go func() {
		defer close(ch)
		defer cs.Close(context.Background())

		for cs.Next(ctx) {
			select {
			case ch <- live.Signal{}:
			default:
			}
		}
		if ctx.Err() != nil {
			return
		}

		err := cs.Err()
		if err == nil {
			err = fmt.Errorf("change stream closed")
		}
		select {
		case <-ch:
		default:
		}
		ch <- live.Signal{Err: errors.Transient(err)}
	}()

	return ch, nil
}

func buildFilter(communityID string, f structures.MessageFilter) bson.M {
	filter := bson.M{"community_id": communityID}
	if f.AuthorID != "" {
		filter["author_id"] = f.AuthorID
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if len(f.Tags) > 0 {
		filter["tags"] = bson.M{"$in": f.Tags}
	}
	if f.HasAttachments != nil {
		filter["attachments.0"] = bson.M{"$exists": *f.HasAttachments}
	}
	if f.ThreadID != "" {
		filter["thread_id"] = f.ThreadID
	}
	if f.PinnedOnly {
		filter["is_pinned"] = true
	}
	if f.BookmarkedBy != "" {
		filter["bookmarked_by"] = f.BookmarkedBy
	}
	if f.Text != "" {
		filter["searchable_content"] = bson.M{"$regex": regexp.QuoteMeta(strings.ToLower(f.Text))}
	}
	if f.Since != nil || f.Until != nil {
		rng := bson.M{}
		if f.Since != nil {
			rng["$gte"] = *f.Since
		}
		if f.Until != nil {
			rng["$lte"] = *f.Until
		}
		filter["created_at"] = rng
	}
	return filter
}

// cursorFilter selects documents strictly after c in sort order s.
func cursorFilter(c *structures.Cursor, s structures.Sort) bson.A {
	op := "$lt"
	if s.Order == structures.SortAsc {
		op = "$gt"
	}

	keys := []bson.E{}
	if s.Field == structures.SortByReactionCount {
		keys = append(keys, bson.E{Key: "reaction_count", Value: c.Value})
	}
	keys = append(keys, bson.E{Key: "created_at", Value: c.CreatedAt}, bson.E{Key: "_id", Value: c.ID})

	or := bson.A{}
	for i, k := range keys {
		clause := bson.M{}
		for _, eq := range keys[:i] {
			clause[eq.Key] = eq.Value
		}
		clause[k.Key] = bson.M{op: k.Value}
		or = append(or, clause)
	}
	return or
}

func sortSpec(s structures.Sort) bson.D {
	order := int(s.Order)
	d := bson.D{}
	if s.Field == structures.SortByReactionCount {
		d = append(d, bson.E{Key: "reaction_count", Value: order})
	}
	return append(d, bson.E{Key: "created_at", Value: order}, bson.E{Key: "_id", Value: order})
}

// normalize keeps array fields non-null so $push and $addToSet always apply.
func normalize(m *structures.ChatMessage) {
	m.Tags = nonNil(m.Tags)
	if m.Attachments == nil {
		m.Attachments = []structures.Attachment{}
	}
	if m.Mentions == nil {
		m.Mentions = []structures.Mention{}
	}
	if m.Reactions == nil {
		m.Reactions = []structures.MessageReaction{}
	}
	m.BookmarkedBy = nonNil(m.BookmarkedBy)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
