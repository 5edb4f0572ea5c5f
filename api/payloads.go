package api

import (
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskflow-api/domain"
)

// decodeObject reads a JSON object body. Keys are kept as sent so an explicit
// null can be told apart from an absent field.
func decodeObject(c echo.Context) (map[string]any, error) {
	var body map[string]any
	if err := decodeBody(c, &body); err != nil || body == nil {
		return nil, domain.Invalid("body", "must be a JSON object")
	}
	return body, nil
}

// decodeBody decodes at most maxBodyBytes of the request body into v.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodyBytes)
	return sonic.ConfigStd.NewDecoder(lr).Decode(v)
}

type fieldReader struct {
	body   map[string]any
	errors map[string]string
}

func newFieldReader(body map[string]any, allowed ...string) *fieldReader {
	r := &fieldReader{body: body, errors: map[string]string{}}
	known := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}
	for k := range body {
		if !known[k] {
			r.errors[k] = "unknown field"
		}
	}
	return r
}

func (r *fieldReader) err() error {
	if len(r.errors) == 0 {
		return nil
	}
	return domain.NewValidationError(r.errors)
}

// lookup returns the raw value and whether the key was sent at all.
func (r *fieldReader) lookup(key string) (any, bool) {
	v, ok := r.body[key]
	return v, ok
}

func (r *fieldReader) str(key string) *string {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	s, isStr := v.(string)
	if !isStr {
		r.errors[key] = "must be a string"
		return nil
	}
	return &s
}

// nullableStr reports (value, cleared). A JSON null or empty string clears.
func (r *fieldReader) nullableStr(key string) (*string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case nil:
		return nil, true
	case string:
		if strings.TrimSpace(s) == "" {
			return nil, true
		}
		return &s, false
	default:
		r.errors[key] = "must be a string or null"
		return nil, false
	}
}

// nullableRef is nullableStr that also takes a numeric identifier. Zero
// clears like the other falsy values.
func (r *fieldReader) nullableRef(key string) (*string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, false
	}
	n, isNum := v.(float64)
	if !isNum {
		return r.nullableStr(key)
	}
	if n == 0 {
		return nil, true
	}
	if n != math.Trunc(n) {
		r.errors[key] = "must be a string, an integer or null"
		return nil, false
	}
	s := strconv.FormatFloat(n, 'f', -1, 64)
	return &s, false
}

func (r *fieldReader) boolean(key string) *bool {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	b, isBool := v.(bool)
	if !isBool {
		r.errors[key] = "must be a boolean"
		return nil
	}
	return &b
}

func (r *fieldReader) integer(key string) *int {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	f, isNum := v.(float64)
	if !isNum || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		r.errors[key] = "must be an integer"
		return nil
	}
	n := int(f)
	return &n
}

var (
	taskBodyFields     = []string{"id", "title", "completed", "priority", "categoryId", "dueDate", "createdAt", "order"}
	categoryBodyFields = []string{"id", "name", "icon", "color", "order"}
)

// taskPatchFromBody turns a request body into a task patch. The id is
// accepted so clients may echo a full task back, but it is never applied.
func taskPatchFromBody(body map[string]any) (domain.TaskPatch, error) {
	r := newFieldReader(body, taskBodyFields...)
	p := domain.TaskPatch{
		Title:     r.str("title"),
		Completed: r.boolean("completed"),
		Order:     r.integer("order"),
	}
	if s := r.str("priority"); s != nil {
		prio, ok := domain.ParsePriority(*s)
		if !ok {
			r.errors["priority"] = "must be one of high, medium, low"
		}
		p.Priority = &prio
	}
	p.CategoryID, p.ClearCategory = r.nullableRef("categoryId")
	if s, cleared := r.nullableStr("dueDate"); cleared {
		p.ClearDueDate = true
	} else if s != nil {
		d, err := domain.ParseDate(*s)
		if err != nil {
			r.errors["dueDate"] = "must be a date (YYYY-MM-DD)"
		} else {
			p.DueDate = &d
		}
	}
	if s := r.str("createdAt"); s != nil {
		ts, err := time.Parse(time.RFC3339Nano, *s)
		if err != nil {
			r.errors["createdAt"] = "must be an RFC 3339 timestamp"
		} else {
			p.CreatedAt = &ts
		}
	}
	return p, r.err()
}

func categoryPatchFromBody(body map[string]any) (domain.CategoryPatch, error) {
	r := newFieldReader(body, categoryBodyFields...)
	p := domain.CategoryPatch{
		Name:  r.str("name"),
		Icon:  r.str("icon"),
		Color: r.str("color"),
		Order: r.integer("order"),
	}
	return p, r.err()
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type moveRequest struct {
	To *int `json:"to"`
}

type boardResponse struct {
	Tasks      []domain.Task              `json:"tasks"`
	Categories []domain.Category          `json:"categories"`
	Filters    domain.Filters             `json:"filters"`
	View       domain.View                `json:"view"`
	Due        map[string]domain.DueState `json:"due"`
}

type reorderResponse struct {
	Tasks  []domain.Task `json:"tasks"`
	Failed []string      `json:"failed,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type categoryOptionsResponse struct {
	Icons  []string `json:"icons"`
	Colors []string `json:"colors"`
}
