package bolt

import (
	"context"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/dmehra2102/storefront-checkout/internal/order/domain"
)

const bucketName = "reconciliation"

// Journal keeps orders whose payment succeeded but that no persistence path
// accepted, keyed by provider transaction id. It lives on local disk so it
// survives the database being unreachable.
type Journal struct {
	db *bolt.DB
}

func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores item unless its transaction is already journaled.
func (j *Journal) Record(_ context.Context, item domain.ReconciliationItem) error {
	key := []byte(item.Order.Payment.ProviderTxID)
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b.Get(key) != nil {
			return nil
		}
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (j *Journal) Pending(_ context.Context) ([]domain.ReconciliationItem, error) {
	items := []domain.ReconciliationItem{}
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var item domain.ReconciliationItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (j *Journal) SetPaymentStatus(_ context.Context, providerTxID, status string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(providerTxID))
		if v == nil {
			return domain.ErrOrderNotFound
		}
		var item domain.ReconciliationItem
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if item.Order.Payment.Status == status {
			return nil
		}
		item.Order.Payment.Status = status
		item.Order.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(providerTxID), data)
	})
}

// Resolve removes a reconciled item. Resolving an unknown id is not an error.
func (j *Journal) Resolve(_ context.Context, providerTxID string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(providerTxID))
	})
}
