package storage

import (
	"context"
	"sort"
	"strconv"
	"strings"
)

// Collections known to the board.
const (
	CollectionTasks      = "task"
	CollectionCategories = "category"
)

// FieldID is the identifier field every stored record carries.
const FieldID = "Id"

// Audit fields maintained by the store itself.
const (
	FieldCreatedOn  = "CreatedOn"
	FieldModifiedOn = "ModifiedOn"
)

// Per record failure codes.
const (
	CodeNotFound = "not_found"
	CodeInvalid  = "invalid"
	CodeConflict = "conflict"
	CodeRejected = "rejected"
)

// Record is a raw field set as kept by the remote store.
type Record map[string]any

// ID returns the record identifier or "" when absent. Numeric identifiers
// are formatted as decimal text.
func (r Record) ID() string {
	switch id := r[FieldID].(type) {
	case string:
		return id
	case nil, bool:
		return ""
	default:
		n, ok := toFloat(id)
		if !ok {
			return ""
		}
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Project keeps only the listed fields plus the identifier. An empty list
// keeps everything.
func (r Record) Project(fields []string) Record {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Record, len(fields)+1)
	if id, ok := r[FieldID]; ok {
		out[FieldID] = id
	}
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Query selects and sorts records of a collection.
type Query struct {
	Fields     []string
	SortBy     string
	Descending bool
}

func (q Query) key() string {
	fields := append([]string(nil), q.Fields...)
	sort.Strings(fields)
	dir := "asc"
	if q.Descending {
		dir = "desc"
	}
	return strings.Join(fields, ",") + "|" + q.SortBy + "|" + dir
}

// FieldError is a field level rejection reported by the store.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RecordResult is the outcome of one record in a batch write.
type RecordResult struct {
	Success bool         `json:"success"`
	ID      string       `json:"id,omitempty"`
	Record  Record       `json:"record,omitempty"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// Response is the envelope of every store call. Payloads must not be trusted
// unless Success is set.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Records []Record       `json:"records,omitempty"`
	Results []RecordResult `json:"results,omitempty"`
}

// RecordStore is the generic CRUD boundary of the remote record store. A
// returned error means the store could not be reached; a reachable store that
// refuses a request answers with Success unset.
type RecordStore interface {
	Fetch(ctx context.Context, collection string, q Query) (Response, error)
	FetchByID(ctx context.Context, collection, id string, fields []string) (Response, error)
	Create(ctx context.Context, collection string, records []Record) (Response, error)
	Update(ctx context.Context, collection string, records []Record) (Response, error)
	Delete(ctx context.Context, collection string, ids []string) (Response, error)
}

// SortRecords orders records by field, keeping the relative order of equal
// values. Numbers compare numerically, everything else as text; records
// missing the field sort first.
func SortRecords(records []Record, field string, descending bool) {
	if field == "" {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		c := compareValues(records[i][field], records[j][field])
		if descending {
			return c > 0
		}
		return c < 0
	})
}

func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
