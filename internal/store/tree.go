// Package store provides the path-addressed tree the reconciler reads and
// writes. Paths are slash-separated ("root/transactions/u1/o1/status").
package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidPath = errors.New("invalid store path")
	ErrUnsupported = errors.New("unsupported store operation")
)

// Tree is the contract the repositories need from the order store.
// ReadSubtree returns nil (and no error) when nothing exists at path.
// Subtrees are map[string]any all the way down.
type Tree interface {
	ReadSubtree(ctx context.Context, path string) (any, error)
	WriteAtPath(ctx context.Context, path string, value any) error
}

// Join builds a path from segments, ignoring empty ones.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split validates a path and returns its segments.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." || strings.ContainsAny(s, ".$#[]") {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segments, nil
}

// Normalize turns a value into the plain tree representation: maps become
// map[string]any, integers int64, structs go through their bson tags.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, float64, int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			n, err := Normalize(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if n != nil {
				out[k] = n
			}
		}
		return out, nil
	case primitive.A:
		return Normalize([]any(t))
	case primitive.DateTime:
		return int64(t), nil
	case []any:
		out := make([]any, 0, len(t))
		for _, child := range t {
			n, err := Normalize(child)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	default:
		switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
		case reflect.Struct, reflect.Map:
		default:
			return nil, fmt.Errorf("normalize: unsupported value type %T", v)
		}
		data, err := bson.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("normalize %T: %w", v, err)
		}
		var doc map[string]any
		if err := bson.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("normalize %T: %w", v, err)
		}
		return Normalize(doc)
	}
}

// Decode fills out (a struct pointer) from a subtree using bson tags.
func Decode(node any, out any) error {
	m, ok := node.(map[string]any)
	if !ok {
		return fmt.Errorf("decode: expected object, got %T", node)
	}
	data, err := bson.Marshal(m)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return bson.Unmarshal(data, out)
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = copyValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = copyValue(child)
		}
		return out
	default:
		return v
	}
}
