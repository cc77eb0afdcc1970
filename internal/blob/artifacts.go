package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
)

// RunPrefix is the key prefix every run writes below.
const RunPrefix = "runs"

// Run writes the artifacts of a single run under runs/<id>/ and remembers
// what it wrote so a failed run can be rolled back.
type Run struct {
	store   Store
	id      string
	written []Info
}

// NewRun binds a run id to store.
func NewRun(store Store, id string) (*Run, error) {
	if store == nil {
		return nil, errors.New("blob: nil store")
	}
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return nil, fmt.Errorf("blob: invalid run id %q", id)
	}
	return &Run{store: store, id: id}, nil
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Prefix returns the key prefix of the run, with trailing slash.
func (r *Run) Prefix() string { return path.Join(RunPrefix, r.id) + "/" }

// Key returns the full key of an artifact name.
func (r *Run) Key(name string) string { return path.Join(RunPrefix, r.id, name) }

// Put stores data as the named artifact.
func (r *Run) Put(ctx context.Context, name, contentType string, data []byte) (Info, error) {
	info, err := r.store.Put(ctx, r.Key(name), bytes.NewReader(data), PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"run-id": r.id},
	})
	if err != nil {
		return Info{}, fmt.Errorf("store artifact %s: %w", name, err)
	}
	r.written = append(r.written, info)
	return info, nil
}

// Written lists the artifacts stored so far, in write order.
func (r *Run) Written() []Info {
	out := make([]Info, len(r.written))
	copy(out, r.written)
	return out
}

// Rollback deletes every artifact stored under the run prefix, including
// keys a failed Put left behind. Keys this run wrote are deleted even when
// listing the prefix fails.
func (r *Run) Rollback(ctx context.Context) error {
	var errs []error
	keys := make(map[string]struct{}, len(r.written))
	for _, info := range r.written {
		keys[info.Key] = struct{}{}
	}
	listed, err := r.store.List(ctx, r.Prefix())
	if err != nil {
		errs = append(errs, fmt.Errorf("list %s: %w", r.Prefix(), err))
	}
	for _, info := range listed {
		keys[info.Key] = struct{}{}
	}
	for _, key := range slices.Sorted(maps.Keys(keys)) {
		if _, err := r.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	r.written = nil
	return errors.Join(errs...)
}

// ReadAll fetches a stored blob into memory.
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	return io.ReadAll(rc)
}

// Open returns the description and content of a stored artifact of the run.
func (r *Run) Open(ctx context.Context, name string) (Info, []byte, error) {
	key := r.Key(name)
	info, err := r.store.Head(ctx, key)
	if err != nil {
		return Info{}, nil, fmt.Errorf("artifact %s: %w", key, err)
	}
	data, err := ReadAll(ctx, r.store, key)
	if err != nil {
		return Info{}, nil, fmt.Errorf("artifact %s: %w", key, err)
	}
	return info, data, nil
}
