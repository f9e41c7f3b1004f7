// Package schema holds the runtime-editable field definitions of each logical table.
package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rpattn/opsdash/internal/domain"
	"github.com/rpattn/opsdash/internal/settings"
)

// Registry is the schema registry. Reads return copies; updates are persisted
// through the settings store before they become visible.
type Registry struct {
	mu      sync.RWMutex
	store   *settings.Store
	schemas map[domain.TableType]domain.Schema
}

// NewRegistry creates a registry seeded with the default schemas.
func NewRegistry(store *settings.Store) *Registry {
	r := &Registry{store: store, schemas: map[domain.TableType]domain.Schema{}}
	for _, s := range DefaultSchemas() {
		r.schemas[s.Table] = s
	}
	return r
}

// Load replaces the in-memory schemas with the persisted ones. Tables missing
// from the persisted document keep their defaults. Nothing is replaced when
// any persisted schema is invalid.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	persisted, err := settings.Get(ctx, r.store, settings.KeySchemas, []domain.Schema(nil))
	if err != nil {
		return err
	}
	for _, s := range persisted {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("persisted schema %s is invalid: %w", s.Table, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[domain.TableType]domain.Schema, len(r.schemas))
	for k, v := range r.schemas {
		next[k] = v
	}
	for _, s := range persisted {
		next[s.Table] = s
	}
	r.schemas = next
	return nil
}

// Get returns a copy of the schema of table.
func (r *Registry) Get(table domain.TableType) (domain.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[table]
	if !ok {
		return domain.Schema{}, fmt.Errorf("no schema registered for %q", table)
	}
	return s.Clone(), nil
}

// All returns copies of every schema in declaration order.
func (r *Registry) All() []domain.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Schema, 0, len(r.schemas))
	for _, table := range domain.TableTypes() {
		if s, ok := r.schemas[table]; ok {
			out = append(out, s.Clone())
		}
	}
	return out
}

// Update validates and persists a replacement schema.
func (r *Registry) Update(ctx context.Context, s domain.Schema) error {
	s = normalize(s)
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[domain.TableType]domain.Schema, len(r.schemas))
	for k, v := range r.schemas {
		next[k] = v
	}
	next[s.Table] = s.Clone()

	if r.store != nil {
		ordered := make([]domain.Schema, 0, len(next))
		for _, table := range domain.TableTypes() {
			if v, ok := next[table]; ok {
				ordered = append(ordered, v)
			}
		}
		if err := r.store.Save(ctx, settings.KeySchemas, ordered); err != nil {
			return err
		}
	}
	r.schemas = next
	return nil
}

// AddField appends a field to a table's schema.
func (r *Registry) AddField(ctx context.Context, table domain.TableType, def domain.FieldDefinition) error {
	s, err := r.Get(table)
	if err != nil {
		return err
	}
	s.Fields = append(s.Fields, def)
	return r.Update(ctx, s)
}

// RelabelField changes the display label of a field, keeping the old label as a tag.
func (r *Registry) RelabelField(ctx context.Context, table domain.TableType, key, label string) error {
	s, err := r.Get(table)
	if err != nil {
		return err
	}
	for i, f := range s.Fields {
		if f.Key != key {
			continue
		}
		if f.Label != "" && f.Label != label {
			f.Tags = append(f.Tags, f.Label)
		}
		f.Label = label
		s.Fields[i] = f
		return r.Update(ctx, s)
	}
	return fmt.Errorf("field %q not found in %s", key, table)
}

func normalize(s domain.Schema) domain.Schema {
	s = s.Clone()
	for i, f := range s.Fields {
		f.Key = strings.TrimSpace(f.Key)
		f.Label = strings.TrimSpace(f.Label)
		f.Type = domain.FieldType(strings.ToUpper(strings.TrimSpace(string(f.Type))))
		tags := f.Tags[:0]
		for _, tag := range f.Tags {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		f.Tags = tags
		s.Fields[i] = f
	}
	return s
}
