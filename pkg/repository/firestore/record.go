package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/finseer-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/finseer-lab/mnemosyne/pkg/domain/model"
	"github.com/finseer-lab/mnemosyne/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// distanceField receives the cosine distance computed by FindNearest
const distanceField = "VectorDistance"

// recordDoc is the Firestore document representation of
// model.MemoryRecord. Embedding is stored as firestore.Vector32 for
// FindNearest vector search.
type recordDoc struct {
	ID        model.RecordID     `firestore:"ID"`
	Content   string             `firestore:"Content"`
	Owner     string             `firestore:"Owner"`
	Kind      string             `firestore:"Kind"`
	Embedding firestore.Vector32 `firestore:"Embedding,omitempty"`
	CreatedAt time.Time          `firestore:"CreatedAt"`
	Metadata  map[string]any     `firestore:"Metadata,omitempty"`

	// Populated only in FindNearest results
	VectorDistance float64 `firestore:"VectorDistance,omitempty"`
}

func toRecordDoc(r *model.MemoryRecord) *recordDoc {
	doc := &recordDoc{
		ID:        r.ID,
		Content:   r.Content,
		Owner:     string(r.Owner),
		Kind:      string(r.Kind),
		CreatedAt: r.CreatedAt,
		Metadata:  r.Metadata,
	}
	if len(r.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(r.Embedding)
	}
	return doc
}

func fromRecordDoc(d *recordDoc) *model.MemoryRecord {
	r := &model.MemoryRecord{
		ID:        d.ID,
		Content:   d.Content,
		Owner:     types.UserID(d.Owner),
		Kind:      types.RecordKind(d.Kind),
		CreatedAt: d.CreatedAt,
		Metadata:  d.Metadata,
	}
	if len(d.Embedding) > 0 {
		r.Embedding = []float32(d.Embedding)
	}
	return r
}

func (s *Store) Upsert(ctx context.Context, record *model.MemoryRecord) (*model.MemoryRecord, error) {
	if record == nil {
		return nil, goerr.New("record is required")
	}
	if !record.Kind.IsValid() {
		return nil, goerr.New("invalid record kind", goerr.V("kind", record.Kind))
	}

	if record.ID == "" {
		record.ID = model.NewRecordID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	docRef := s.collection(record.Kind).Doc(string(record.ID))
	if _, err := docRef.Set(ctx, toRecordDoc(record)); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert record",
			goerr.V("recordID", record.ID),
			goerr.V("kind", record.Kind))
	}

	return record, nil
}

func (s *Store) Search(ctx context.Context, kind types.RecordKind, embedding []float32, opts ...interfaces.SearchOption) ([]*model.MemoryRecord, error) {
	var options interfaces.SearchOptions
	for _, opt := range opts {
		opt(&options)
	}
	limit := options.Limit
	if limit <= 0 {
		limit = 5
	}

	query := s.collection(kind).Query
	if !options.Owner.IsEmpty() {
		query = query.Where("Owner", "==", string(options.Owner))
	}

	nearestOpts := &firestore.FindNearestOptions{
		DistanceResultField: distanceField,
	}
	if options.ScoreThreshold > 0 {
		// FindNearest thresholds on cosine distance; similarity s maps
		// to distance 1-s
		distance := 1 - options.ScoreThreshold
		nearestOpts.DistanceThreshold = &distance
	}

	vq := query.FindNearest("Embedding", firestore.Vector32(embedding), limit,
		firestore.DistanceMeasureCosine, nearestOpts)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	records := make([]*model.MemoryRecord, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.FailedPrecondition {
				return nil, goerr.Wrap(err, "vector search requires an index, run the migrate command", goerr.V("kind", kind))
			}
			return nil, goerr.Wrap(err, "failed to iterate vector search results", goerr.V("kind", kind))
		}

		var d recordDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal record from vector search")
		}

		record := fromRecordDoc(&d)
		record.RelevanceScore = 1 - d.VectorDistance
		records = append(records, record)
	}

	return records, nil
}

func (s *Store) ListByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID, limit int) ([]*model.MemoryRecord, error) {
	if owner.IsEmpty() {
		return nil, goerr.New("owner is required")
	}
	if limit <= 0 {
		limit = 20
	}

	iter := s.collection(kind).
		Where("Owner", "==", string(owner)).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	records := make([]*model.MemoryRecord, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate records",
				goerr.V("kind", kind),
				goerr.V("owner", owner))
		}

		var d recordDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal record")
		}

		records = append(records, fromRecordDoc(&d))
	}

	return records, nil
}

func (s *Store) DeleteByOwner(ctx context.Context, kind types.RecordKind, owner types.UserID) (int, error) {
	if owner.IsEmpty() {
		return 0, goerr.New("owner is required")
	}

	iter := s.collection(kind).
		Where("Owner", "==", string(owner)).
		Documents(ctx)
	defer iter.Stop()

	var refs []*firestore.DocumentRef
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to iterate records for deletion",
				goerr.V("kind", kind),
				goerr.V("owner", owner))
		}
		refs = append(refs, doc.Ref)
	}

	if len(refs) == 0 {
		return 0, nil
	}

	bulkWriter := s.client.BulkWriter(ctx)
	defer bulkWriter.End()

	for _, ref := range refs {
		if _, err := bulkWriter.Delete(ref); err != nil {
			return 0, goerr.Wrap(err, "failed to add delete operation to bulk writer")
		}
	}
	bulkWriter.Flush()

	return len(refs), nil
}

func (s *Store) Count(ctx context.Context, kind types.RecordKind) (int, error) {
	result, err := s.collection(kind).NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count records", goerr.V("kind", kind))
	}

	value, ok := result["all"]
	if !ok {
		return 0, goerr.New("aggregation result missing count", goerr.V("kind", kind))
	}
	count, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected aggregation result type", goerr.V("kind", kind))
	}

	return int(count.GetIntegerValue()), nil
}
