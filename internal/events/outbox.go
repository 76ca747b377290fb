package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// OutboxItem is a message that one publisher failed to deliver.
type OutboxItem struct {
	ID        string    `json:"id"`
	Publisher string    `json:"publisher"`
	Message   Message   `json:"message"`
	Retries   int       `json:"retries"`
	Timestamp time.Time `json:"timestamp"`

	key []byte
}

// Outbox is a bbolt-backed retry queue ordered by enqueue time.
type Outbox struct {
	db     *bolt.DB
	bucket []byte
}

func OpenOutbox(path string) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	bucket := []byte("outbox")
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}
	return &Outbox{db: db, bucket: bucket}, nil
}

func (o *Outbox) Enqueue(item OutboxItem) error {
	if o == nil || o.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = time.Now()
	}
	key := []byte(fmt.Sprintf("%020d_%s", item.Timestamp.UnixNano(), item.ID))
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(o.bucket).Put(key, payload)
	})
}

// Batch returns up to limit items, oldest first, without removing them.
func (o *Outbox) Batch(limit int) ([]OutboxItem, error) {
	if o == nil || o.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	if limit <= 0 {
		limit = 50
	}
	var items []OutboxItem
	err := o.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(o.bucket).Cursor()
		for k, v := c.First(); k != nil && len(items) < limit; k, v = c.Next() {
			var item OutboxItem
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			item.key = append([]byte(nil), k...)
			items = append(items, item)
		}
		return nil
	})
	return items, err
}

func (o *Outbox) Remove(item OutboxItem) error {
	if o == nil || o.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	if len(item.key) == 0 {
		return nil
	}
	return o.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(o.bucket).Delete(item.key)
	})
}

// Requeue moves an item to the back of the queue.
func (o *Outbox) Requeue(item OutboxItem) error {
	if err := o.Remove(item); err != nil {
		return err
	}
	item.key = nil
	item.Timestamp = time.Now()
	return o.Enqueue(item)
}

func (o *Outbox) Size() (int, error) {
	if o == nil || o.db == nil {
		return 0, bolt.ErrDatabaseNotOpen
	}
	var n int
	err := o.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(o.bucket).Stats().KeyN
		return nil
	})
	return n, err
}

func (o *Outbox) Close() error {
	if o == nil || o.db == nil {
		return nil
	}
	return o.db.Close()
}
