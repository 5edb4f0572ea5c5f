package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memCollection struct {
	ids  []string
	rows map[string]Record
}

// MemoryStore is an in-process RecordStore used for local development and
// tests. It starts empty; Seed loads fixtures and Reset drops everything.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	now         func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memCollection),
		now:         time.Now,
	}
}

// Seed inserts records as-is. Records without an identifier get one and
// numeric identifiers are kept as their decimal text.
func (m *MemoryStore) Seed(collection string, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.collectionLocked(collection)
	for _, rec := range records {
		row := rec.Clone()
		if id := row.ID(); id != "" {
			row[FieldID] = id
		} else {
			row[FieldID] = uuid.NewString()
		}
		c.put(row)
	}
}

// Reset removes every collection.
func (m *MemoryStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = make(map[string]*memCollection)
}

func (m *MemoryStore) collectionLocked(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{rows: make(map[string]Record)}
		m.collections[name] = c
	}
	return c
}

func (c *memCollection) put(row Record) {
	id := row.ID()
	if _, exists := c.rows[id]; !exists {
		c.ids = append(c.ids, id)
	}
	c.rows[id] = row
}

func (c *memCollection) remove(id string) {
	delete(c.rows, id)
	for i, v := range c.ids {
		if v == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			return
		}
	}
}

func (m *MemoryStore) Fetch(ctx context.Context, collection string, q Query) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := []Record{}
	if c, ok := m.collections[collection]; ok {
		for _, id := range c.ids {
			records = append(records, c.rows[id].Project(q.Fields))
		}
	}
	SortRecords(records, q.SortBy, q.Descending)
	return Response{Success: true, Records: records}, nil
}

func (m *MemoryStore) FetchByID(ctx context.Context, collection, id string, fields []string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return Response{Message: "record not found"}, nil
	}
	row, ok := c.rows[id]
	if !ok {
		return Response{Message: "record not found"}, nil
	}
	return Response{Success: true, Records: []Record{row.Project(fields)}}, nil
}

func (m *MemoryStore) Create(ctx context.Context, collection string, records []Record) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collectionLocked(collection)
	now := m.now().UTC().Format(time.RFC3339Nano)
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
		c.put(row)
		results = append(results, RecordResult{Success: true, ID: row.ID(), Record: row.Clone()})
	}
	return Response{Success: true, Results: results}, nil
}

func (m *MemoryStore) Update(ctx context.Context, collection string, records []Record) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collectionLocked(collection)
	now := m.now().UTC().Format(time.RFC3339Nano)
	results := make([]RecordResult, 0, len(records))
	for _, rec := range records {
		id := rec.ID()
		if id == "" {
			results = append(results, RecordResult{Code: CodeInvalid, Message: "missing " + FieldID,
				Errors: []FieldError{{Field: FieldID, Message: "is required"}}})
			continue
		}
		row, ok := c.rows[id]
		if !ok {
			results = append(results, RecordResult{ID: id, Code: CodeNotFound, Message: "record not found"})
			continue
		}
		if errs := validateRecord(collection, rec, false); len(errs) > 0 {
			results = append(results, RecordResult{ID: id, Code: CodeInvalid, Message: "invalid fields", Errors: errs})
			continue
		}
		merged := row.Clone()
		for k, v := range rec {
			merged[k] = v
		}
		merged[FieldModifiedOn] = now
		c.put(merged)
		results = append(results, RecordResult{Success: true, ID: id, Record: merged.Clone()})
	}
	return Response{Success: true, Results: results}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection string, ids []string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.collectionLocked(collection)
	results := make([]RecordResult, 0, len(ids))
	for _, id := range ids {
		if _, ok := c.rows[id]; !ok {
			results = append(results, RecordResult{ID: id, Code: CodeNotFound, Message: "record not found"})
			continue
		}
		c.remove(id)
		results = append(results, RecordResult{Success: true, ID: id})
	}
	return Response{Success: true, Results: results}, nil
}
