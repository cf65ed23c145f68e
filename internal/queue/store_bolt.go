package queue

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

var (
	salesBucket     = []byte("queued_sales")
	indexBucket     = []byte("queued_sales_by_client_id")
	attentionBucket = []byte("sync_attention")
)

// BoltStore keeps the queue in a single bolt file. Every Update transaction
// is fsynced on commit, so Append is durable when it returns.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the queue file at path and ensures the
// buckets exist.
func OpenBoltStore(path string, timeout time.Duration) (*BoltStore, error) {
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt queue %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{salesBucket, indexBucket, attentionBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt queue buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func (s *BoltStore) Append(ctx context.Context, sale Sale) (Sale, bool, error) {
	if err := ctx.Err(); err != nil {
		return Sale{}, false, err
	}

	var (
		stored  Sale
		created bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		salesB := tx.Bucket(salesBucket)
		indexB := tx.Bucket(indexBucket)

		id := []byte(sale.ClientTempID.String())
		if existingKey := indexB.Get(id); existingKey != nil {
			return json.Unmarshal(salesB.Get(existingKey), &stored)
		}

		seq, err := salesB.NextSequence()
		if err != nil {
			return err
		}
		sale.Seq = int64(seq)

		data, err := json.Marshal(sale)
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := salesB.Put(key, data); err != nil {
			return err
		}
		if err := indexB.Put(id, key); err != nil {
			return err
		}
		stored = sale
		created = true
		return nil
	})
	if err != nil {
		return Sale{}, false, err
	}
	return stored, created, nil
}

func (s *BoltStore) Oldest(ctx context.Context) (*Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found *Sale
	err := s.db.View(func(tx *bolt.Tx) error {
		attentionB := tx.Bucket(attentionBucket)
		c := tx.Bucket(salesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var sale Sale
			if err := json.Unmarshal(v, &sale); err != nil {
				return err
			}
			if attentionB.Get([]byte(sale.ClientTempID.String())) != nil {
				continue
			}
			found = &sale
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) Get(ctx context.Context, id uuid.UUID) (*Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sale Sale
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket(indexBucket).Get([]byte(id.String()))
		if key == nil {
			return ErrNotFound
		}
		return json.Unmarshal(tx.Bucket(salesBucket).Get(key), &sale)
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *BoltStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		rawID := []byte(id.String())
		indexB := tx.Bucket(indexBucket)
		if err := tx.Bucket(attentionBucket).Delete(rawID); err != nil {
			return err
		}
		key := indexB.Get(rawID)
		if key == nil {
			return nil
		}
		// bolt byte slices are only valid inside the transaction.
		key = bytes.Clone(key)
		if err := tx.Bucket(salesBucket).Delete(key); err != nil {
			return err
		}
		return indexB.Delete(rawID)
	})
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = countKeys(tx.Bucket(salesBucket))
		return nil
	})
	return count, err
}

func countKeys(b *bolt.Bucket) int {
	n := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		n++
	}
	return n
}

func (s *BoltStore) Flag(ctx context.Context, attention Attention) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		rawID := []byte(attention.ClientTempID.String())
		if tx.Bucket(indexBucket).Get(rawID) == nil {
			return ErrNotFound
		}
		data, err := json.Marshal(attention)
		if err != nil {
			return err
		}
		return tx.Bucket(attentionBucket).Put(rawID, data)
	})
}

func (s *BoltStore) Unflag(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(attentionBucket)
		rawID := []byte(id.String())
		if b.Get(rawID) == nil {
			return ErrNotFound
		}
		return b.Delete(rawID)
	})
}

func (s *BoltStore) ListAttention(ctx context.Context) ([]AttentionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []AttentionEntry{}
	err := s.db.View(func(tx *bolt.Tx) error {
		salesB := tx.Bucket(salesBucket)
		indexB := tx.Bucket(indexBucket)
		return tx.Bucket(attentionBucket).ForEach(func(k, v []byte) error {
			var entry AttentionEntry
			if err := json.Unmarshal(v, &entry.Attention); err != nil {
				return err
			}
			key := indexB.Get(k)
			if key == nil {
				return nil
			}
			if err := json.Unmarshal(salesB.Get(key), &entry.Sale); err != nil {
				return err
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortAttention(out)
	return out, nil
}

func (s *BoltStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		attentionB := tx.Bucket(attentionBucket)
		stats.Attention = countKeys(attentionB)

		c := tx.Bucket(salesBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			stats.Total++
			if stats.OldestAt != nil {
				continue
			}
			var sale Sale
			if err := json.Unmarshal(v, &sale); err != nil {
				return err
			}
			if attentionB.Get([]byte(sale.ClientTempID.String())) == nil {
				at := sale.CreatedAt
				stats.OldestAt = &at
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	stats.Pending = stats.Total - stats.Attention
	return stats, nil
}
