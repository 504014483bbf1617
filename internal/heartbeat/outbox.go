// internal/heartbeat/outbox.go
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OutboxQueue is the redis list external consumers pop decision requests from
const OutboxQueue = "psyche:outbox"

// OutboxEntry is one durable outbound message. The row is the source of
// truth; the redis push is a best-effort wakeup for consumers.
type OutboxEntry struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind      string         `gorm:"not null;index" json:"kind"`
	Payload   datatypes.JSON `gorm:"not null" json:"payload"`
	Delivered bool           `gorm:"not null;default:false;index" json:"delivered"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName specifies the table name for GORM
func (OutboxEntry) TableName() string {
	return "psyche_outbox"
}

// Outbox persists outbound messages and nudges redis consumers
type Outbox struct {
	db  *gorm.DB
	rdb *redis.Client // May be nil in tests
}

// NewOutbox creates the outbox
func NewOutbox(db *gorm.DB, rdb *redis.Client) *Outbox {
	return &Outbox{db: db, rdb: rdb}
}

// Emit stores one message and pushes it onto the redis queue. A redis failure
// only logs; the durable row remains for later redelivery.
func (o *Outbox) Emit(ctx context.Context, kind string, payload interface{}) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode outbox payload: %w", err)
	}

	entry := OutboxEntry{Kind: kind, Payload: datatypes.JSON(raw)}
	if err := o.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return 0, fmt.Errorf("failed to persist outbox entry: %w", err)
	}

	if o.rdb != nil {
		envelope, _ := json.Marshal(map[string]interface{}{
			"id":      entry.ID,
			"kind":    kind,
			"payload": json.RawMessage(raw),
		})
		if perr := o.rdb.LPush(ctx, OutboxQueue, envelope).Err(); perr != nil {
			log.Printf("[Outbox] WARNING: redis push failed for entry %d: %v", entry.ID, perr)
		} else {
			o.markDelivered(ctx, entry.ID)
		}
	}
	return entry.ID, nil
}

// RedeliverPending pushes undelivered rows onto the queue again, oldest first
func (o *Outbox) RedeliverPending(ctx context.Context, limit int) (int, error) {
	if o.rdb == nil {
		return 0, nil
	}

	var rows []OutboxEntry
	err := o.db.WithContext(ctx).
		Where("delivered = ?", false).
		Order("id asc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load pending outbox entries: %w", err)
	}

	sent := 0
	for _, entry := range rows {
		envelope, _ := json.Marshal(map[string]interface{}{
			"id":      entry.ID,
			"kind":    entry.Kind,
			"payload": json.RawMessage(entry.Payload),
		})
		if perr := o.rdb.LPush(ctx, OutboxQueue, envelope).Err(); perr != nil {
			return sent, fmt.Errorf("redis push failed for entry %d: %w", entry.ID, perr)
		}
		o.markDelivered(ctx, entry.ID)
		sent++
	}
	return sent, nil
}

func (o *Outbox) markDelivered(ctx context.Context, id int64) {
	if err := o.db.WithContext(ctx).Model(&OutboxEntry{}).
		Where("id = ?", id).
		Update("delivered", true).Error; err != nil {
		log.Printf("[Outbox] WARNING: failed to mark entry %d delivered: %v", id, err)
	}
}
