package repository

import (
	"context"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskflow-api/domain"
	"taskflow-api/storage"
)

const tracerName = "taskflow-api/repository"

// recordRepo holds the store plumbing shared by the task and category
// repositories. It never caches: every call reaches the store.
type recordRepo[T any] struct {
	store      storage.RecordStore
	logger     *log.Logger
	entity     string
	collection string
	fields     []string
	fieldNames map[string]string
	fromRecord func(storage.Record) T
	orderOf    func(T) int
}

func (r *recordRepo[T]) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("store.collection", r.collection))
	return otel.Tracer(tracerName).Start(ctx, "repository."+r.entity+"."+op, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (r *recordRepo[T]) getAll(ctx context.Context) (out []T, err error) {
	ctx, span := r.start(ctx, "get_all")
	defer func() { finish(span, err) }()

	resp, err := r.store.Fetch(ctx, r.collection, storage.Query{Fields: r.fields, SortBy: "order"})
	if err != nil {
		r.logger.WithError(err).WithField("collection", r.collection).Error("list records failed")
		return nil, fmt.Errorf("%w: %w: %v", domain.ErrLoadFailed, domain.ErrStoreUnavailable, err)
	}
	if !resp.Success {
		r.logger.WithFields(log.Fields{"collection": r.collection, "message": resp.Message}).Error("list records refused")
		return nil, fmt.Errorf("%w: %s", domain.ErrLoadFailed, refusalMessage(resp.Message))
	}

	out = make([]T, 0, len(resp.Records))
	for _, rec := range resp.Records {
		out = append(out, r.fromRecord(rec))
	}
	sort.SliceStable(out, func(i, j int) bool { return r.orderOf(out[i]) < r.orderOf(out[j]) })
	span.SetAttributes(attribute.Int("store.records", len(out)))
	return out, nil
}

func (r *recordRepo[T]) getByID(ctx context.Context, id string) (out T, err error) {
	ctx, span := r.start(ctx, "get_by_id", attribute.String("entity.id", id))
	defer func() { finish(span, err) }()

	resp, err := r.store.FetchByID(ctx, r.collection, id, r.fields)
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !resp.Success || len(resp.Records) == 0 {
		return out, fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.entity, id)
	}
	return r.fromRecord(resp.Records[0]), nil
}

// count returns the number of records in the collection.
func (r *recordRepo[T]) count(ctx context.Context) (int, error) {
	resp, err := r.store.Fetch(ctx, r.collection, storage.Query{Fields: []string{storage.FieldID}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !resp.Success {
		return 0, fmt.Errorf("%w: count %s: %s", domain.ErrCreateFailed, r.collection, refusalMessage(resp.Message))
	}
	return len(resp.Records), nil
}

func (r *recordRepo[T]) create(ctx context.Context, rec storage.Record) (out T, err error) {
	ctx, span := r.start(ctx, "create")
	defer func() { finish(span, err) }()

	resp, err := r.store.Create(ctx, r.collection, []storage.Record{rec})
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !resp.Success {
		return out, fmt.Errorf("%w: %s", domain.ErrCreateFailed, refusalMessage(resp.Message))
	}
	for _, res := range resp.Results {
		if !res.Success && len(res.Errors) > 0 {
			return out, r.validationError(res.Errors)
		}
	}
	if len(resp.Results) != 1 || !resp.Results[0].Success {
		r.logger.WithFields(log.Fields{"collection": r.collection, "results": len(resp.Results)}).Warn("create not confirmed")
		return out, fmt.Errorf("%w: %s", domain.ErrCreateFailed, resultMessage(resp.Results))
	}

	res := resp.Results[0]
	stored := res.Record
	if stored == nil {
		stored = rec.Clone()
		stored[storage.FieldID] = res.ID
	}
	out = r.fromRecord(stored)
	span.SetAttributes(attribute.String("entity.id", stored.ID()))
	return out, nil
}

func (r *recordRepo[T]) update(ctx context.Context, id string, rec storage.Record) (out T, err error) {
	ctx, span := r.start(ctx, "update", attribute.String("entity.id", id))
	defer func() { finish(span, err) }()

	rec = rec.Clone()
	rec[storage.FieldID] = id
	resp, err := r.store.Update(ctx, r.collection, []storage.Record{rec})
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !resp.Success {
		return out, fmt.Errorf("%w: %s", domain.ErrUpdateFailed, refusalMessage(resp.Message))
	}
	if len(resp.Results) != 1 {
		return out, fmt.Errorf("%w: %s", domain.ErrUpdateFailed, resultMessage(resp.Results))
	}

	res := resp.Results[0]
	switch {
	case res.Success:
	case res.Code == storage.CodeNotFound:
		return out, fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.entity, id)
	case len(res.Errors) > 0:
		return out, r.validationError(res.Errors)
	default:
		return out, fmt.Errorf("%w: %s", domain.ErrUpdateFailed, resultMessage(resp.Results))
	}

	if res.Record == nil {
		return r.getByID(ctx, id)
	}
	return r.fromRecord(res.Record), nil
}

func (r *recordRepo[T]) delete(ctx context.Context, id string) (ok bool, err error) {
	ctx, span := r.start(ctx, "delete", attribute.String("entity.id", id))
	defer func() { finish(span, err) }()

	resp, err := r.store.Delete(ctx, r.collection, []string{id})
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !resp.Success {
		return false, fmt.Errorf("%w: %s", domain.ErrDeleteFailed, refusalMessage(resp.Message))
	}
	if len(resp.Results) != 1 {
		return false, fmt.Errorf("%w: %s", domain.ErrDeleteFailed, resultMessage(resp.Results))
	}
	res := resp.Results[0]
	if res.Code == storage.CodeNotFound {
		return false, fmt.Errorf("%w: %s %s", domain.ErrNotFound, r.entity, id)
	}
	if !res.Success {
		return false, fmt.Errorf("%w: %s", domain.ErrDeleteFailed, resultMessage(resp.Results))
	}
	return true, nil
}

func (r *recordRepo[T]) validationError(errs []storage.FieldError) error {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		name, ok := r.fieldNames[fe.Field]
		if !ok {
			name = fe.Field
			if fe.Field == storage.FieldID {
				name = "id"
			}
		}
		fields[name] = fe.Message
	}
	return domain.NewValidationError(fields)
}

func refusalMessage(msg string) string {
	if msg == "" {
		return "store refused the request"
	}
	return msg
}

func resultMessage(results []storage.RecordResult) string {
	if len(results) == 0 {
		return "no result reported"
	}
	for _, res := range results {
		if !res.Success && res.Message != "" {
			return res.Message
		}
	}
	return fmt.Sprintf("%d results reported", len(results))
}

func loggerOrDefault(logger *log.Logger) *log.Logger {
	if logger == nil {
		return log.StandardLogger()
	}
	return logger
}
