package persistence

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/o-tero/fetchkit/pkg/fkerrors"
)

var (
	recordsBucket = []byte("records")
	expiryBucket  = []byte("expiry_index")
)

// BoltBackend is the indexed-durable variant (spec.md §4.4): a bucket
// keyed by the prefixed key holding the encoded Record, plus a secondary
// index bucket keyed by a big-endian expiresAt timestamp so cleanup can
// range-scan instead of touching every key, the way the durable-local
// backend's cleanupExpired has to.
//
// Grounded the same way as BadgerBackend: go.etcd.io/bbolt comes from
// tomtom215-cartographus's go.mod in the retrieval pack (SPEC_FULL.md
// §4.9); the bucket-plus-secondary-index layout follows bbolt's own
// documented pattern for indexed lookups.
type BoltBackend struct {
	db      *bolt.DB
	prefix  string
	maxSize int
}

// BoltConfig configures a BoltBackend.
type BoltConfig struct {
	Path    string
	Prefix  string
	MaxSize int
}

// NewBoltBackend opens (or creates) the bolt.DB file at cfg.Path and
// ensures both buckets exist.
func NewBoltBackend(cfg BoltConfig) (*BoltBackend, error) {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fkerrors.Wrap(fkerrors.KindUnknown, "open bolt db", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(expiryBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fkerrors.Wrap(fkerrors.KindUnknown, "init bolt buckets", err)
	}

	return &BoltBackend{db: db, prefix: prefix, maxSize: cfg.MaxSize}, nil
}

func (b *BoltBackend) key(key string) []byte {
	return []byte(b.prefix + key)
}

// indexKey composes a sortable big-endian expiresAt with the full record
// key so the expiry bucket's keys range-scan in chronological order while
// staying unique per record.
func indexKey(expiresAt time.Time, recordKey []byte) []byte {
	buf := make([]byte, 8+len(recordKey))
	binary.BigEndian.PutUint64(buf[:8], uint64(expiresAt.UnixNano()))
	copy(buf[8:], recordKey)
	return buf
}

func (b *BoltBackend) Set(ctx context.Context, key string, rec Record) error {
	if b.maxSize > 0 {
		size, err := b.GetSize(ctx)
		if err != nil {
			return err
		}
		existing, _, _ := b.Get(ctx, key)
		if size-existing.Size+rec.Size > b.maxSize {
			if err := b.cleanupExpired(); err != nil {
				return err
			}
			size, err = b.GetSize(ctx)
			if err != nil {
				return err
			}
			if size-existing.Size+rec.Size > b.maxSize {
				return fkerrors.ErrQuotaExceeded
			}
		}
	}

	rk := b.key(key)
	return b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(expiryBucket)

		if old := records.Get(rk); old != nil {
			if oldRec, err := decodeRecord(old); err == nil && !oldRec.ExpiresAt.IsZero() {
				if err := index.Delete(indexKey(oldRec.ExpiresAt, rk)); err != nil {
					return err
				}
			}
		}

		if err := records.Put(rk, encodeRecord(rec)); err != nil {
			return err
		}
		if !rec.ExpiresAt.IsZero() {
			return index.Put(indexKey(rec.ExpiresAt, rk), rk)
		}
		return nil
	})
}

func (b *BoltBackend) Get(ctx context.Context, key string) (Record, bool, error) {
	var rec Record
	found := false
	rk := b.key(key)
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(recordsBucket).Get(rk)
		if data == nil {
			return nil
		}
		r, err := decodeRecord(data)
		if err != nil {
			return err
		}
		rec = r
		found = true
		return nil
	})
	if err != nil {
		return Record{}, false, fkerrors.Wrap(fkerrors.KindUnknown, "bolt get", err)
	}
	if found && rec.IsExpired(time.Now()) {
		_, _ = b.Delete(ctx, key)
		return Record{}, false, nil
	}
	return rec, found, nil
}

func (b *BoltBackend) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := b.Get(ctx, key)
	return ok, err
}

func (b *BoltBackend) Delete(ctx context.Context, key string) (bool, error) {
	rk := b.key(key)
	existed := false
	err := b.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		data := records.Get(rk)
		if data == nil {
			return nil
		}
		existed = true
		if rec, err := decodeRecord(data); err == nil && !rec.ExpiresAt.IsZero() {
			if err := tx.Bucket(expiryBucket).Delete(indexKey(rec.ExpiresAt, rk)); err != nil {
				return err
			}
		}
		return records.Delete(rk)
	})
	if err != nil {
		return false, fkerrors.Wrap(fkerrors.KindUnknown, "bolt delete", err)
	}
	return existed, nil
}

func (b *BoltBackend) Clear(ctx context.Context) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recordsBucket); err != nil {
			return err
		}
		if err := tx.DeleteBucket(expiryBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(expiryBucket)
		return err
	})
}

func (b *BoltBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	prefixLen := len(b.prefix)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		prefixBytes := []byte(b.prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, _ = c.Next() {
			keys = append(keys, string(k[prefixLen:]))
		}
		return nil
	})
	if err != nil {
		return nil, fkerrors.Wrap(fkerrors.KindUnknown, "bolt keys", err)
	}
	return keys, nil
}

func (b *BoltBackend) GetSize(ctx context.Context) (int, error) {
	total := 0
	prefixBytes := []byte(b.prefix)
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(recordsBucket).Cursor()
		for k, v := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, v = c.Next() {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			total += rec.Size
		}
		return nil
	})
	if err != nil {
		return 0, fkerrors.Wrap(fkerrors.KindUnknown, "bolt size", err)
	}
	return total, nil
}

// cleanupExpired range-scans the expiry index up to now, deleting each
// expired record and its index entry. This is the payoff of keeping the
// secondary index: no full bucket scan is needed.
func (b *BoltBackend) cleanupExpired() error {
	now := indexKey(time.Now(), nil)
	return b.db.Update(func(tx *bolt.Tx) error {
		index := tx.Bucket(expiryBucket)
		records := tx.Bucket(recordsBucket)
		c := index.Cursor()
		var toDelete [][]byte
		for k, v := c.First(); k != nil && bytes.Compare(k, now) <= 0; k, v = c.Next() {
			toDelete = append(toDelete, append([]byte(nil), k...))
			if err := records.Delete(v); err != nil {
				return err
			}
		}
		for _, k := range toDelete {
			if err := index.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

var _ Backend = (*BoltBackend)(nil)
