package knowledge

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Base combines the SQLite store and the full-text index into the
// engine-facing knowledge base.
type Base struct {
	mu    sync.Mutex
	store *store
	idx   *textIndex
}

// Open opens (or creates) a knowledge base backed by dbPath, with the
// text index beside it at dbPath+".bleve".
func Open(ctx context.Context, dbPath string) (*Base, error) {
	s, err := openStore(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	indexPath := ""
	if dbPath != "" {
		indexPath = dbPath + ".bleve"
	}
	idx, err := openIndex(indexPath)
	if err != nil {
		s.close()
		return nil, err
	}

	return &Base{store: s, idx: idx}, nil
}

// OpenInMemory creates a transient knowledge base. Used by tests and by
// engines configured without a data directory.
func OpenInMemory(ctx context.Context) (*Base, error) {
	return Open(ctx, "")
}

// Add persists a new entry and indexes its content, returning the stored
// entry with its assigned id and timestamp.
func (b *Base) Add(ctx context.Context, category, content string, metadata map[string]string, importance float64) (Entry, error) {
	if content == "" {
		return Entry{}, fmt.Errorf("knowledge entry content must not be empty")
	}

	e := Entry{
		ID:         uuid.NewString(),
		Category:   category,
		Content:    content,
		Metadata:   metadata,
		Timestamp:  nowUnix(),
		Importance: importance,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.store.insert(ctx, e); err != nil {
		return Entry{}, err
	}
	if err := b.idx.add(e); err != nil {
		// Entry remains durable; it just won't show in search results.
		log.Printf("[knowledge] WARNING: failed to index entry %s: %v", e.ID, err)
	}
	return e, nil
}

// Query runs a full-text search over entry content. An empty category
// searches everything.
func (b *Base) Query(ctx context.Context, query, category string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.idx.search(query, category, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		e, err := b.store.get(ctx, id)
		if err != nil {
			// The index can briefly lag pruning; skip vanished rows.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Recent returns the newest entries of a category.
func (b *Base) Recent(ctx context.Context, category string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.byCategory(ctx, category, limit)
}

// Count returns the number of stored entries.
func (b *Base) Count(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.count(ctx)
}

// Prune enforces MaxEntries, discarding the lowest importance entries
// first (oldest first among equals).
func (b *Base) Prune(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, err := b.store.pruneOverflow(ctx, MaxEntries)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := b.idx.remove(ids); err != nil {
		log.Printf("[knowledge] WARNING: failed to drop %d pruned entries from index: %v", len(ids), err)
	}
	return len(ids), nil
}

// Close releases the store and the index.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	storeErr := b.store.close()
	idxErr := b.idx.close()
	if storeErr != nil {
		return storeErr
	}
	return idxErr
}
