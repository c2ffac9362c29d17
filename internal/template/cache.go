package template

import (
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// cacheKey is the single badger key the cache stores the whole template
// collection under; the collection is small and rarely mutated, so one
// full-list entry with a TTL is simpler than per-template keys.
const cacheKey = "templates:all"

// CachedStore wraps a backing Store (typically the relational store in
// internal/store) with an embedded badger read-through cache, so
// concurrent scorer invocations don't all hit the relational store for
// the same small, slow-changing template collection.
type CachedStore struct {
	backing Store
	db      *badger.DB
	ttl     time.Duration
}

// NewCachedStore wraps backing with a badger cache rooted at db. ttl of
// zero defaults to 5 minutes.
func NewCachedStore(backing Store, db *badger.DB, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{backing: backing, db: db, ttl: ttl}
}

// All returns the cached template collection, refreshing from the
// backing store on a cache miss or expired entry.
func (c *CachedStore) All() ([]Record, error) {
	if records, ok := c.readCache(); ok {
		return records, nil
	}

	records, err := c.backing.All()
	if err != nil {
		return nil, err
	}
	c.writeCache(records)
	return records, nil
}

// Invalidate drops the cached entry, forcing the next All() to refresh
// from the backing store.
func (c *CachedStore) Invalidate() error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(cacheKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (c *CachedStore) readCache() ([]Record, bool) {
	var records []Record
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cacheKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &records)
		})
	})
	if err != nil {
		return nil, false
	}
	return records, true
}

func (c *CachedStore) writeCache(records []Record) {
	data, err := json.Marshal(records)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(cacheKey), data).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
}
