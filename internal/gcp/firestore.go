package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/resumeparser/internal/models"
)

// NewFirestoreClient creates a Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

// FirestoreLedger stores one ParseRun document per invocation.
type FirestoreLedger struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreLedger(client *firestore.Client, collection string) *FirestoreLedger {
	return &FirestoreLedger{client: client, collection: collection, now: time.Now}
}

// Start adds a new run document and returns its ID.
func (l *FirestoreLedger) Start(ctx context.Context, run models.ParseRun) (string, error) {
	now := l.now().UTC()
	run.CreatedAt = now
	run.UpdatedAt = now
	docRef, _, err := l.client.Collection(l.collection).Add(ctx, run)
	if err != nil {
		return "", fmt.Errorf("failed to create parse run document: %w", err)
	}
	return docRef.ID, nil
}

// Update applies the non-zero fields of u to the run document.
func (l *FirestoreLedger) Update(ctx context.Context, id string, u models.RunUpdate) error {
	if _, err := l.client.Collection(l.collection).Doc(id).Update(ctx, runUpdates(u, l.now().UTC())); err != nil {
		return fmt.Errorf("failed to update parse run %s: %w", id, err)
	}
	return nil
}

func runUpdates(u models.RunUpdate, at time.Time) []firestore.Update {
	updates := []firestore.Update{{Path: "updatedAt", Value: at}}
	add := func(path string, value interface{}, set bool) {
		if set {
			updates = append(updates, firestore.Update{Path: path, Value: value})
		}
	}
	add("status", u.Status, u.Status != "")
	add("failedStage", u.FailedStage, u.FailedStage != "")
	add("errorDetails", u.ErrorDetails, u.ErrorDetails != "")
	add("sessionId", u.SessionID, u.SessionID != "")
	add("pageCount", u.PageCount, u.PageCount > 0)
	add("textLength", u.TextLength, u.TextLength > 0)
	add("outputKey", u.OutputKey, u.OutputKey != "")
	return updates
}
