package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"pheme/contract"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// DeliveryRepository journals ledger transitions in BadgerDB.
// It is plugged into the ledger as a contract.DeliverySink.
type DeliveryRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewDeliveryRepository(db *badger.DB, log *slog.Logger) DeliveryRepository {
	return DeliveryRepository{db: db, log: log}
}

// Consume stores d under "delivery:{message_id}:{receiver_id}".
// A later transition for the same pair overwrites the previous one.
func (d DeliveryRepository) Consume(_ context.Context, delivery contract.Delivery) error {
	key := fmt.Sprintf("delivery:%s:%s", delivery.MessageID, delivery.ReceiverID)
	bytes, err := json.Marshal(delivery)
	if err != nil {
		return err
	}
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// ListByMessage returns every journaled receiver of messageID using a prefix scan.
func (d DeliveryRepository) ListByMessage(messageID uuid.UUID) ([]contract.Delivery, error) {
	var deliveries []contract.Delivery
	err := d.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("delivery:%s:", messageID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var delivery contract.Delivery
				if err := json.Unmarshal(val, &delivery); err != nil {
					return err
				}
				deliveries = append(deliveries, delivery)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.log.Debug(fmt.Sprintf("%d deliveries found for message %s", len(deliveries), messageID))
	return deliveries, nil
}
