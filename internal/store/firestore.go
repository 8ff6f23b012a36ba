package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore keeps each ingestion as its own generation of documents under
// <collection>_ingestions/<id>/records. The pointer document <collection>_state/current
// names the live generation, and every read resolves it first.
type Firestore struct {
	client     *firestore.Client
	collection string
	logger     *slog.Logger
}

type firestoreSubject struct {
	Name       string  `firestore:"name"`
	Total      int     `firestore:"total"`
	Grade      string  `firestore:"grade"`
	GradePoint float64 `firestore:"gp"`
}

type firestoreRecord struct {
	Seq        int                `firestore:"seq"`
	SeatNo     string             `firestore:"seatNo"`
	Name       string             `firestore:"name"`
	GrandTotal *int               `firestore:"grandTotal"`
	SGPA       []float64          `firestore:"sgpa"`
	CGPA       *float64           `firestore:"cgpa"`
	Remark     string             `firestore:"remark"`
	Subjects   []firestoreSubject `firestore:"subjects"`
}

type generationPointer struct {
	Generation string    `firestore:"generation"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// NewFirestore wraps client. The store owns the client and closes it on Close.
func NewFirestore(client *firestore.Client, collection string, logger *slog.Logger) (*Firestore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client must be provided")
	}
	if collection == "" {
		return nil, fmt.Errorf("firestore collection must be provided")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Firestore{client: client, collection: collection, logger: logger.With("collection", collection)}, nil
}

func (f *Firestore) stateRef() *firestore.DocumentRef {
	return f.client.Collection(f.collection + "_state").Doc("current")
}

func (f *Firestore) generationRef(id string) *firestore.DocumentRef {
	return f.client.Collection(f.collection + "_ingestions").Doc(id)
}

// live returns the records collection of the current generation, or nil when nothing
// has been ingested yet.
func (f *Firestore) live(ctx context.Context) (*firestore.CollectionRef, error) {
	snap, err := f.stateRef().Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read generation pointer: %w", err)
	}
	var ptr generationPointer
	if err := snap.DataTo(&ptr); err != nil {
		return nil, fmt.Errorf("failed to decode generation pointer: %w", err)
	}
	if ptr.Generation == "" {
		return nil, nil
	}
	return f.generationRef(ptr.Generation).Collection("records"), nil
}

func (f *Firestore) ReplaceAll(ctx context.Context, records []models.StudentRecord) error {
	gen := uuid.NewString()
	logCtx := f.logger.With("generation", gen, "recordCount", len(records))
	genRef := f.generationRef(gen)

	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(records)+1)
	job, err := bw.Set(genRef, models.Ingestion{IngestionID: gen, RecordCount: len(records), CreatedAt: time.Now()})
	if err != nil {
		bw.End()
		return fmt.Errorf("failed to queue generation document: %w", err)
	}
	jobs = append(jobs, job)
	for i, r := range records {
		doc := genRef.Collection("records").Doc(fmt.Sprintf("%08d", i+1))
		job, err := bw.Set(doc, toFirestoreRecord(i+1, r))
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue record %d: %w", i, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			logCtx.Error("Generation write failed; discarding partial generation.", "error", err)
			f.deleteGeneration(context.WithoutCancel(ctx), gen)
			return fmt.Errorf("failed to write generation %s: %w", gen, err)
		}
	}

	var previous string
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		previous = ""
		snap, err := tx.Get(f.stateRef())
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var ptr generationPointer
			if err := snap.DataTo(&ptr); err != nil {
				return err
			}
			previous = ptr.Generation
		}
		return tx.Set(f.stateRef(), generationPointer{Generation: gen, UpdatedAt: time.Now()})
	})
	if err != nil {
		f.deleteGeneration(context.WithoutCancel(ctx), gen)
		return fmt.Errorf("failed to switch to generation %s: %w", gen, err)
	}
	logCtx.Info("Generation is live.", "previousGeneration", previous)

	if previous != "" && previous != gen {
		f.deleteGeneration(context.WithoutCancel(ctx), previous)
	}
	return nil
}

// deleteGeneration removes a generation that is no longer (or never was) live.
// Failures only leave orphaned documents behind, so they are logged.
func (f *Firestore) deleteGeneration(ctx context.Context, gen string) {
	logCtx := f.logger.With("generation", gen)
	genRef := f.generationRef(gen)
	refs, err := genRef.Collection("records").DocumentRefs(ctx).GetAll()
	if err != nil {
		logCtx.Warn("Failed to list generation records for deletion.", "error", err)
		return
	}
	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(refs)+1)
	for _, ref := range append(refs, genRef) {
		job, err := bw.Delete(ref)
		if err != nil {
			logCtx.Warn("Failed to queue delete.", "doc", ref.Path, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	bw.End()
	failed := 0
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			failed++
		}
	}
	if failed > 0 {
		logCtx.Warn("Some generation documents were not deleted.", "failed", failed)
		return
	}
	logCtx.Info("Deleted generation.", "records", len(refs))
}

func (f *Firestore) Count(ctx context.Context) (int, error) {
	coll, err := f.live(ctx)
	if err != nil || coll == nil {
		return 0, err
	}
	res, err := coll.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	v, ok := res["total"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res["total"])
	}
	return int(v.GetIntegerValue()), nil
}

func (f *Firestore) AverageCGPA(ctx context.Context) (float64, bool, error) {
	coll, err := f.live(ctx)
	if err != nil || coll == nil {
		return 0, false, err
	}
	res, err := coll.NewAggregationQuery().WithAvg("cgpa", "avgCgpa").Get(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to average cgpa: %w", err)
	}
	v, ok := res["avgCgpa"].(*firestorepb.Value)
	if !ok {
		return 0, false, fmt.Errorf("unexpected average result %T", res["avgCgpa"])
	}
	switch x := v.GetValueType().(type) {
	case *firestorepb.Value_DoubleValue:
		return x.DoubleValue, true, nil
	case *firestorepb.Value_IntegerValue:
		return float64(x.IntegerValue), true, nil
	}
	return 0, false, nil
}

func (f *Firestore) CountByRemark(ctx context.Context) ([]models.RemarkCount, error) {
	coll, err := f.live(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	if coll == nil {
		return groupRemarks(counts), nil
	}
	iter := coll.Select("remark").Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read remarks: %w", err)
		}
		remark, _ := doc.Data()["remark"].(string)
		counts[remark]++
	}
	return groupRemarks(counts), nil
}

func (f *Firestore) CGPAValues(ctx context.Context) ([]float64, error) {
	values := []float64{}
	coll, err := f.live(ctx)
	if err != nil || coll == nil {
		return values, err
	}
	iter := coll.Select("cgpa").OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read cgpa values: %w", err)
		}
		switch v := doc.Data()["cgpa"].(type) {
		case float64:
			if v != 0 {
				values = append(values, v)
			}
		case int64:
			if v != 0 {
				values = append(values, float64(v))
			}
		}
	}
	return values, nil
}

// Find reads the live generation in insertion order; filtering and sorting happen in
// memory so records missing the sort field are kept.
func (f *Firestore) Find(ctx context.Context, q Query) ([]models.StudentRecord, error) {
	coll, err := f.live(ctx)
	if err != nil || coll == nil {
		return nil, err
	}
	fq := coll.OrderBy("seq", firestore.Asc)
	if q.Filter.IsZero() && q.Sort == SortNone && q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	iter := fq.Documents(ctx)
	defer iter.Stop()

	var records []models.StudentRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read records: %w", err)
		}
		var fr firestoreRecord
		if err := doc.DataTo(&fr); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", doc.Ref.ID, err)
		}
		records = append(records, fromFirestoreRecord(fr))
	}
	return apply(records, q), nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func toFirestoreRecord(seq int, r models.StudentRecord) firestoreRecord {
	subjects := make([]firestoreSubject, len(r.Subjects))
	for i, s := range r.Subjects {
		subjects[i] = firestoreSubject{Name: s.Name, Total: s.Total, Grade: s.Grade, GradePoint: s.GradePoint}
	}
	return firestoreRecord{
		Seq:        seq,
		SeatNo:     r.SeatNo,
		Name:       r.Name,
		GrandTotal: r.GrandTotal,
		SGPA:       r.SGPA,
		CGPA:       r.CGPA,
		Remark:     r.Remark,
		Subjects:   subjects,
	}
}

func fromFirestoreRecord(fr firestoreRecord) models.StudentRecord {
	subjects := make([]models.SubjectScore, len(fr.Subjects))
	for i, s := range fr.Subjects {
		subjects[i] = models.SubjectScore{Name: s.Name, Total: s.Total, Grade: s.Grade, GradePoint: s.GradePoint}
	}
	r := models.StudentRecord{
		SeatNo:     fr.SeatNo,
		Name:       fr.Name,
		GrandTotal: fr.GrandTotal,
		CGPA:       fr.CGPA,
		Remark:     fr.Remark,
		Subjects:   subjects,
	}
	if len(fr.SGPA) > 0 {
		r.SGPA = fr.SGPA
	}
	return r
}
