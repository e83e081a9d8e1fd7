package repository

import (
	"context"
	"fmt"

	"github.com/go-kivik/kivik/v4"
)

const indexDesignDoc = "_design/accounts"

type designDocument struct {
	ID       string                `json:"_id"`
	Rev      string                `json:"_rev,omitempty"`
	Language string                `json:"language"`
	Views    map[string]designView `json:"views"`
}

type designView struct {
	Map    string `json:"map"`
	Reduce string `json:"reduce,omitempty"`
}

func subscriptionsDesign() *designDocument {
	return &designDocument{
		ID:       subscriptionsDesignDoc,
		Language: "javascript",
		Views: map[string]designView{
			byChannelView: {
				Map:    `function (doc) { if (doc.type === "subscription") { emit(doc.channel_id, null); } }`,
				Reduce: "_count",
			},
			bySubscriberView: {
				Map:    `function (doc) { if (doc.type === "subscription") { emit(doc.subscriber_id, null); } }`,
				Reduce: "_count",
			},
		},
	}
}

// EnsureSchema creates the database, the Mango indexes used by account
// lookups and the subscription count views. It is safe to run on every start.
func EnsureSchema(ctx context.Context, client *kivik.Client, dbName string) error {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, dbName); err != nil && !isPreconditionFailed(err) {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	db := client.DB(dbName)

	indexes := map[string][]string{
		"by-type-username": {"type", "username"},
		"by-type-email":    {"type", "email"},
	}
	for name, fields := range indexes {
		index := map[string]interface{}{"fields": fields}
		if err := db.CreateIndex(ctx, indexDesignDoc, name, index); err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}

	design := subscriptionsDesign()
	if rev, err := db.GetRev(ctx, design.ID); err == nil {
		design.Rev = rev
	} else if !isNotFound(err) {
		return fmt.Errorf("failed to read design document: %w", err)
	}
	if _, err := db.Put(ctx, design.ID, design); err != nil && !isConflict(err) {
		return fmt.Errorf("failed to write design document: %w", err)
	}

	return nil
}
