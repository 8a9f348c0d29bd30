package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo maps the tree onto MongoDB. Below the root prefix the first segment
// names a Mongo collection and the next two (owner, key) identify a document;
// anything deeper is a dotted field inside that document's "value".
//
//	<root>/transactions/<owner>/<order>/statusUpdates/<id>
//	  -> db.transactions {_id: "<owner>/<order>"} value.statusUpdates.<id>
type Mongo struct {
	db   *mongo.Database
	root []string
	now  func() time.Time
}

type mongoNode struct {
	ID        string         `bson:"_id"`
	OwnerID   string         `bson:"owner_id"`
	Key       string         `bson:"node_key"`
	Value     map[string]any `bson:"value"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

func NewMongo(db *mongo.Database, root string) (*Mongo, error) {
	segments, err := Split(root)
	if err != nil {
		return nil, err
	}
	return &Mongo{db: db, root: segments, now: func() time.Time { return time.Now().UTC() }}, nil
}

func nodeID(owner, key string) string {
	return owner + "/" + key
}

// relative strips the root prefix from path.
func (m *Mongo) relative(path string) ([]string, error) {
	segments, err := Split(path)
	if err != nil {
		return nil, err
	}
	if len(segments) < len(m.root) {
		return nil, fmt.Errorf("%w: %q is outside root %q", ErrInvalidPath, path, strings.Join(m.root, "/"))
	}
	for i, seg := range m.root {
		if segments[i] != seg {
			return nil, fmt.Errorf("%w: %q is outside root %q", ErrInvalidPath, path, strings.Join(m.root, "/"))
		}
	}
	return segments[len(m.root):], nil
}

func (m *Mongo) ReadSubtree(ctx context.Context, path string) (any, error) {
	rel, err := m.relative(path)
	if err != nil {
		return nil, err
	}

	switch len(rel) {
	case 0:
		return nil, fmt.Errorf("%w: reading the whole root", ErrUnsupported)
	case 1:
		return m.readNodes(ctx, rel[0], bson.M{}, true)
	case 2:
		return m.readNodes(ctx, rel[0], bson.M{"owner_id": rel[1]}, false)
	}

	var node mongoNode
	err = m.db.Collection(rel[0]).FindOne(ctx, bson.M{"_id": nodeID(rel[1], rel[2])}).Decode(&node)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo read %s: %w", path, err)
	}

	value, err := Normalize(node.Value)
	if err != nil {
		return nil, err
	}
	for _, seg := range rel[3:] {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, nil
		}
		if value, ok = obj[seg]; !ok {
			return nil, nil
		}
	}
	return value, nil
}

// readNodes returns owner -> key -> value when byOwner, otherwise key -> value.
func (m *Mongo) readNodes(ctx context.Context, collection string, filter bson.M, byOwner bool) (any, error) {
	cur, err := m.db.Collection(collection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	out := make(map[string]any)
	for cur.Next(ctx) {
		var node mongoNode
		if err := cur.Decode(&node); err != nil {
			return nil, fmt.Errorf("mongo decode %s: %w", collection, err)
		}
		value, err := Normalize(node.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			value = map[string]any{}
		}
		if !byOwner {
			out[node.Key] = value
			continue
		}
		owner, ok := out[node.OwnerID].(map[string]any)
		if !ok {
			owner = make(map[string]any)
			out[node.OwnerID] = owner
		}
		owner[node.Key] = value
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor %s: %w", collection, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func (m *Mongo) WriteAtPath(ctx context.Context, path string, value any) error {
	rel, err := m.relative(path)
	if err != nil {
		return err
	}
	if len(rel) < 3 {
		return fmt.Errorf("%w: writes must address a document or a field below it, got %q", ErrUnsupported, path)
	}
	n, err := Normalize(value)
	if err != nil {
		return err
	}

	coll := m.db.Collection(rel[0])
	id := nodeID(rel[1], rel[2])

	if len(rel) == 3 {
		if n == nil {
			_, err := coll.DeleteOne(ctx, bson.M{"_id": id})
			return wrapWrite(path, err)
		}
		obj, ok := n.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: document value at %q must be an object", ErrUnsupported, path)
		}
		node := mongoNode{ID: id, OwnerID: rel[1], Key: rel[2], Value: obj, UpdatedAt: m.now()}
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, node, options.Replace().SetUpsert(true))
		return wrapWrite(path, err)
	}

	field := "value." + strings.Join(rel[3:], ".")
	if n == nil {
		update := bson.M{
			"$unset": bson.M{field: ""},
			"$set":   bson.M{"updated_at": m.now()},
		}
		_, err := coll.UpdateOne(ctx, bson.M{"_id": id}, update)
		return wrapWrite(path, err)
	}

	update := bson.M{
		"$set":         bson.M{field: n, "updated_at": m.now()},
		"$setOnInsert": bson.M{"owner_id": rel[1], "node_key": rel[2]},
	}
	_, err = coll.UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	return wrapWrite(path, err)
}

func wrapWrite(path string, err error) error {
	if err != nil {
		return fmt.Errorf("mongo write %s: %w", path, err)
	}
	return nil
}
