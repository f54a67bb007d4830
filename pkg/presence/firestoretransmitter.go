package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
)

// FirestoreTransmitter records the device's presence as a document in a
// Firestore collection, keyed by device ID. It suits smaller deployments
// where the web admin reads presence straight from Firestore and a dedicated
// heartbeat endpoint would be overkill.
type FirestoreTransmitter struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreTransmitter creates a new FirestoreTransmitter.
func NewFirestoreTransmitter(client *firestore.Client, collectionName string) (*FirestoreTransmitter, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collectionName == "" {
		return nil, errors.New("collection name cannot be empty")
	}
	return &FirestoreTransmitter{
		client:     client,
		collection: collectionName,
	}, nil
}

// Send creates or overwrites the device's presence document.
func (t *FirestoreTransmitter) Send(ctx context.Context, signal Signal) error {
	if signal.DeviceID == "" {
		return errors.New("signal has no device ID")
	}
	_, err := t.client.Collection(t.collection).Doc(signal.DeviceID).Set(ctx, map[string]interface{}{
		"status":    string(signal.Status),
		"updatedAt": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to set presence in firestore for device %s: %w", signal.DeviceID, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (t *FirestoreTransmitter) Close() error {
	return nil
}
