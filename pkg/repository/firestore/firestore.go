// Package firestore implements the durable vector store on Cloud
// Firestore. Conversation records and document records live in separate
// collections; similarity search uses Firestore's native FindNearest
// with cosine distance.
package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

// CollectionConversations and CollectionDocuments are the Firestore
// collection names backing each record kind.
const (
	CollectionConversations = "conversations"
	CollectionDocuments     = "documents"
)

// Store implements interfaces.VectorStore on Firestore
type Store struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.VectorStore = &Store{}

// Option is a functional option for Store configuration
type Option func(*Store)

// WithCollectionPrefix namespaces the collections, used by tests that
// share a Firestore project
func WithCollectionPrefix(prefix string) Option {
	return func(s *Store) {
		s.collectionPrefix = prefix
	}
}

// New creates a Firestore-backed vector store. An empty databaseID uses
// the project's default database.
func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Store, error) {
	var client *firestore.Client
	var err error
	if databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// CollectionName maps a record kind to its Firestore collection
func CollectionName(kind types.RecordKind) string {
	switch kind {
	case types.RecordKindDocument:
		return CollectionDocuments
	default:
		return CollectionConversations
	}
}

func (s *Store) collection(kind types.RecordKind) *firestore.CollectionRef {
	return s.client.Collection(s.collectionPrefix + CollectionName(kind))
}

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
