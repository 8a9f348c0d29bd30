package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Memory is an in-process Tree. Writes replace whatever sits at the path and
// create missing parents; writing nil deletes the node.
type Memory struct {
	mu   sync.RWMutex
	root map[string]any
}

func NewMemory() *Memory {
	return &Memory{root: make(map[string]any)}
}

// LoadJSON replaces the whole tree with a JSON document.
func (m *Memory) LoadJSON(r io.Reader) error {
	var doc map[string]any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return fmt.Errorf("memory store: decode seed: %w", err)
	}
	n, err := Normalize(doc)
	if err != nil {
		return fmt.Errorf("memory store: normalize seed: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.root = n.(map[string]any)
	return nil
}

func (m *Memory) ReadSubtree(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	segments, err := Split(path)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var node any = m.root
	for _, seg := range segments {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, nil
		}
		if node, ok = obj[seg]; !ok {
			return nil, nil
		}
	}
	return copyValue(node), nil
}

func (m *Memory) WriteAtPath(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segments, err := Split(path)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("%w: cannot write the tree root", ErrInvalidPath)
	}
	n, err := Normalize(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent := m.root
	for _, seg := range segments[:len(segments)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			if n == nil {
				return nil
			}
			child = make(map[string]any)
			parent[seg] = child
		}
		parent = child
	}
	leaf := segments[len(segments)-1]
	if n == nil {
		delete(parent, leaf)
		return nil
	}
	parent[leaf] = n
	return nil
}
