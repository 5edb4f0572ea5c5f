package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type tableClient interface {
	NewListEntitiesPager(opts *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, pk, rk string, opts *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, opts *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, opts *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, pk, rk string, opts *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

// TableStore keeps each collection in its own Azure table. Every record of a
// collection shares the partition named after the collection; the record id
// is the row key.
type TableStore struct {
	svc    *aztables.ServiceClient
	names  map[string]string
	tables map[string]tableClient
	now    func() time.Time
}

// NewTableStore connects to the table service. tables maps collection names
// to table names.
func NewTableStore(connStr string, tables map[string]string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: 15 * time.Second,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	clients := make(map[string]tableClient, len(tables))
	for collection, name := range tables {
		clients[collection] = svc.NewClient(name)
	}
	return &TableStore{svc: svc, names: tables, tables: clients, now: time.Now}, nil
}

// EnsureTables creates the backing tables, tolerating ones that already exist.
func (s *TableStore) EnsureTables(ctx context.Context) error {
	for collection, name := range s.names {
		_, err := s.svc.NewClient(name).CreateTable(ctx, nil)
		if err != nil {
			var respErr *azcore.ResponseError
			if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
				continue
			}
			return err
		}
		log.WithFields(log.Fields{"collection": collection, "table": name}).Info("table created")
	}
	return nil
}

func (s *TableStore) table(collection string) (tableClient, bool) {
	c, ok := s.tables[collection]
	return c, ok
}

func unknownCollection(collection string) Response {
	return Response{Message: "unknown collection " + collection}
}

func (s *TableStore) Fetch(ctx context.Context, collection string, q Query) (Response, error) {
	t, ok := s.table(collection)
	if !ok {
		return unknownCollection(collection), nil
	}
	filter := "PartitionKey eq '" + collection + "'"
	opts := &aztables.ListEntitiesOptions{Filter: &filter}
	if len(q.Fields) > 0 {
		sel := strings.Join(append([]string{"RowKey"}, q.Fields...), ",")
		opts.Select = &sel
	}

	records := []Record{}
	pager := t.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			if msg, refused := refusal(err); refused {
				return Response{Message: msg}, nil
			}
			return Response{}, err
		}
		for _, raw := range resp.Entities {
			rec, err := entityToRecord(raw)
			if err != nil {
				return Response{}, err
			}
			records = append(records, rec)
		}
	}
	SortRecords(records, q.SortBy, q.Descending)
	return Response{Success: true, Records: records}, nil
}

func (s *TableStore) FetchByID(ctx context.Context, collection, id string, fields []string) (Response, error) {
	t, ok := s.table(collection)
	if !ok {
		return unknownCollection(collection), nil
	}
	ent, err := t.GetEntity(ctx, collection, id, nil)
	if err != nil {
		if msg, refused := refusal(err); refused {
			return Response{Message: msg}, nil
		}
		return Response{}, err
	}
	rec, err := entityToRecord(ent.Value)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Records: []Record{rec.Project(fields)}}, nil
}

func (s *TableStore) Create(ctx context.Context, collection string, records []Record) (Response, error) {
	t, ok := s.table(collection)
	if !ok {
		return unknownCollection(collection), nil
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	results := make([]RecordResult, 0, len(records))
	for _, rec := range records {
		if errs := validateRecord(collection, rec, true); len(errs) > 0 {
			results = append(results, RecordResult{Code: CodeInvalid, Message: "invalid fields", Errors: errs})
			continue
		}
		row := rec.Clone()
		row[FieldID] = uuid.NewString()
		row[FieldCreatedOn] = now
		row[FieldModifiedOn] = now
		payload, err := recordToEntity(collection, row)
		if err != nil {
			return Response{}, err
		}
		if _, err := t.AddEntity(ctx, payload, nil); err != nil {
			if res, refused := refusedResult(row.ID(), err); refused {
				results = append(results, res)
				continue
			}
			return Response{}, err
		}
		results = append(results, RecordResult{Success: true, ID: row.ID(), Record: withoutNulls(row)})
	}
	return Response{Success: true, Results: results}, nil
}

func (s *TableStore) Update(ctx context.Context, collection string, records []Record) (Response, error) {
	t, ok := s.table(collection)
	if !ok {
		return unknownCollection(collection), nil
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	results := make([]RecordResult, 0, len(records))
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			results = append(results, RecordResult{Code: CodeInvalid, Message: "missing " + FieldID,
				Errors: []FieldError{{Field: FieldID, Message: "is required"}}})
			continue
		}
		if errs := validateRecord(collection, rec, false); len(errs) > 0 {
			results = append(results, RecordResult{ID: id, Code: CodeInvalid, Message: "invalid fields", Errors: errs})
			continue
		}
		ent, err := t.GetEntity(ctx, collection, id, nil)
		if err != nil {
			if res, refused := refusedResult(id, err); refused {
				results = append(results, res)
				continue
			}
			return Response{}, err
		}
		current, err := entityToRecord(ent.Value)
		if err != nil {
			return Response{}, err
		}
		for k, v := range rec {
			current[k] = v
		}
		current[FieldModifiedOn] = now
		payload, err := recordToEntity(collection, current)
		if err != nil {
			return Response{}, err
		}
		etag := ent.ETag
		// Replace rather than merge so cleared fields are dropped.
		_, err = t.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		if err != nil {
			if res, refused := refusedResult(id, err); refused {
				results = append(results, res)
				continue
			}
			return Response{}, err
		}
		results = append(results, RecordResult{Success: true, ID: id, Record: withoutNulls(current)})
	}
	return Response{Success: true, Results: results}, nil
}

func (s *TableStore) Delete(ctx context.Context, collection string, ids []string) (Response, error) {
	t, ok := s.table(collection)
	if !ok {
		return unknownCollection(collection), nil
	}
	results := make([]RecordResult, 0, len(ids))
	for _, id := range ids {
		if _, err := t.DeleteEntity(ctx, collection, id, nil); err != nil {
			if res, refused := refusedResult(id, err); refused {
				results = append(results, res)
				continue
			}
			return Response{}, err
		}
		results = append(results, RecordResult{Success: true, ID: id})
	}
	return Response{Success: true, Results: results}, nil
}

// refusal reports whether err is an answer from the service rather than a
// transport failure.
func refusal(err error) (string, bool) {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return "", false
	}
	if respErr.StatusCode == http.StatusNotFound {
		return "record not found", true
	}
	if respErr.StatusCode >= 500 || respErr.StatusCode == http.StatusTooManyRequests || respErr.StatusCode == http.StatusRequestTimeout {
		return "", false
	}
	msg := respErr.ErrorCode
	if msg == "" {
		msg = http.StatusText(respErr.StatusCode)
	}
	return msg, true
}

func refusedResult(id string, err error) (RecordResult, bool) {
	msg, refused := refusal(err)
	if !refused {
		return RecordResult{}, false
	}
	res := RecordResult{ID: id, Code: CodeRejected, Message: msg}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			res.Code = CodeNotFound
		case http.StatusConflict, http.StatusPreconditionFailed:
			res.Code = CodeConflict
		}
	}
	return res, true
}

var tableSystemFields = map[string]bool{"PartitionKey": true, "RowKey": true, "Timestamp": true}

func entityToRecord(raw []byte) (Record, error) {
	var m map[string]any
	if err := sonic.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	rec := make(Record, len(m))
	for k, v := range m {
		if tableSystemFields[k] || strings.HasPrefix(k, "odata.") || strings.Contains(k, "@odata.") {
			continue
		}
		rec[k] = v
	}
	if rk, ok := m["RowKey"].(string); ok {
		rec[FieldID] = rk
	}
	if _, ok := rec[FieldModifiedOn]; !ok {
		if ts, ok := m["Timestamp"].(string); ok {
			rec[FieldModifiedOn] = ts
		}
	}
	return rec, nil
}

// recordToEntity builds the table payload. Tables cannot hold nulls, so nil
// fields are left out.
func recordToEntity(collection string, rec Record) ([]byte, error) {
	ent := make(map[string]any, len(rec)+2)
	for k, v := range rec {
		if k == FieldID || v == nil {
			continue
		}
		ent[k] = v
	}
	ent["PartitionKey"] = collection
	ent["RowKey"] = rec.ID()
	return sonic.Marshal(ent)
}

func withoutNulls(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
