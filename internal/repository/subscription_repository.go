package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kivik/kivik/v4"
)

const (
	subscriptionType = "subscription"

	subscriptionsDesignDoc = "_design/subscriptions"
	bySubscriberView       = "by_subscriber"
	byChannelView          = "by_channel"
)

type SubscriptionRepository interface {
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	CountSubscribers(ctx context.Context, channelID string) (int, error)
	CountSubscriptions(ctx context.Context, subscriberID string) (int, error)
	IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error)
}

type subscriptionDocument struct {
	ID           string    `json:"_id"`
	Rev          string    `json:"_rev,omitempty"`
	Type         string    `json:"type"`
	SubscriberID string    `json:"subscriber_id"`
	ChannelID    string    `json:"channel_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type subscriptionRepository struct {
	client *kivik.Client
	dbName string
}

func NewSubscriptionRepository(client *kivik.Client, dbName string) SubscriptionRepository {
	return &subscriptionRepository{
		client: client,
		dbName: dbName,
	}
}

// The pair is the document id, so a subscriber can follow a channel at most once.
func subscriptionDocID(subscriberID, channelID string) string {
	return fmt.Sprintf("subscription:%s:%s", subscriberID, channelID)
}

func (r *subscriptionRepository) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	db := r.client.DB(r.dbName)

	doc := &subscriptionDocument{
		ID:           subscriptionDocID(subscriberID, channelID),
		Type:         subscriptionType,
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := db.Put(ctx, doc.ID, doc); err != nil {
		if isConflict(err) {
			return nil
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *subscriptionRepository) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	db := r.client.DB(r.dbName)
	docID := subscriptionDocID(subscriberID, channelID)

	rev, err := db.GetRev(ctx, docID)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	if _, err := db.Delete(ctx, docID, rev); err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	return nil
}

func (r *subscriptionRepository) CountSubscribers(ctx context.Context, channelID string) (int, error) {
	return r.count(ctx, byChannelView, channelID)
}

func (r *subscriptionRepository) CountSubscriptions(ctx context.Context, subscriberID string) (int, error) {
	return r.count(ctx, bySubscriberView, subscriberID)
}

func (r *subscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	if subscriberID == "" {
		return false, nil
	}

	db := r.client.DB(r.dbName)
	if _, err := db.GetRev(ctx, subscriptionDocID(subscriberID, channelID)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}

	return true, nil
}

// count reads the _count reduce of a view for one key. A key with no rows
// yields no reduce row at all, which is a count of zero.
func (r *subscriptionRepository) count(ctx context.Context, view, key string) (int, error) {
	db := r.client.DB(r.dbName)

	rows := db.Query(ctx, subscriptionsDesignDoc, view,
		kivik.Param("key", key),
		kivik.Param("reduce", true),
		kivik.Param("group", true),
	)
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("failed to query %s: %w", view, err)
		}
		return 0, nil
	}

	var n int
	if err := rows.ScanValue(&n); err != nil {
		return 0, fmt.Errorf("failed to scan %s count: %w", view, err)
	}

	return n, nil
}
