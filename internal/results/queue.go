// Package results provides a persistent queue for hook execution results.
// Results are queued locally and uploaded when the controller is reachable,
// so a controller outage never loses the outcome of a prolog or epilog that
// already ran.
package results

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/opsforge/hookd/internal/hooks"
)

const resultsBucket = "pending_results"

// Pending wraps a hook result awaiting upload. Seq is the queue-assigned
// ordering key, not part of the result itself.
type Pending struct {
	Seq    uint64        `json:"seq"`
	Result *hooks.Result `json:"result"`
}

// Queue provides persistent storage for pending results.
type Queue struct {
	db *bolt.DB
}

// Open opens or creates the result queue database.
func Open(dbPath string) (*Queue, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(resultsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Queue{db: db}, nil
}

// Enqueue adds a result to the queue.
func (q *Queue) Enqueue(r *hooks.Result) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))

		seq, _ := b.NextSequence()
		p := Pending{Seq: seq, Result: r}

		data, err := json.Marshal(&p)
		if err != nil {
			return err
		}

		return b.Put(itob(seq), data)
	})
}

// Dequeue retrieves up to limit results from the queue, oldest first. Entries
// stay in the queue until Remove is called with their sequence numbers.
func (q *Queue) Dequeue(limit int) ([]*Pending, error) {
	var pending []*Pending

	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))
		c := b.Cursor()

		for k, v := c.First(); k != nil && len(pending) < limit; k, v = c.Next() {
			var p Pending
			if err := json.Unmarshal(v, &p); err != nil {
				continue
			}
			pending = append(pending, &p)
		}
		return nil
	})

	return pending, err
}

// Remove deletes entries by sequence number after successful upload.
func (q *Queue) Remove(seqs []uint64) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))
		for _, seq := range seqs {
			if err := b.Delete(itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of pending results.
func (q *Queue) Count() (int, error) {
	var count int
	err := q.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(resultsBucket))
		count = b.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the database.
func (q *Queue) Close() error {
	return q.db.Close()
}

// itob converts uint64 to big-endian bytes for ordered keys.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
