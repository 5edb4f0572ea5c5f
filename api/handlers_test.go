package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"taskflow-api/domain"
	"taskflow-api/repository"
	"taskflow-api/storage"
)

var errNetwork = errors.New("dial tcp: connection refused")

// downStore fails every call as if the store were unreachable.
type downStore struct{}

func (downStore) Fetch(context.Context, string, storage.Query) (storage.Response, error) {
	return storage.Response{}, errNetwork
}

func (downStore) FetchByID(context.Context, string, string, []string) (storage.Response, error) {
	return storage.Response{}, errNetwork
}

func (downStore) Create(context.Context, string, []storage.Record) (storage.Response, error) {
	return storage.Response{}, errNetwork
}

func (downStore) Update(context.Context, string, []storage.Record) (storage.Response, error) {
	return storage.Response{}, errNetwork
}

func (downStore) Delete(context.Context, string, []string) (storage.Response, error) {
	return storage.Response{}, errNetwork
}

type mockAuth struct{ err error }

func (m mockAuth) UserIDFromAuthHeader(string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "user", nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Name()
	}
	return out
}

type testServer struct {
	e     *echo.Echo
	store storage.RecordStore
	hook  *test.Hook
}

func newTestServer(t *testing.T, store storage.RecordStore, mutate func(d *Deps)) *testServer {
	t.Helper()
	logger, hook := test.NewNullLogger()
	if store == nil {
		store = storage.NewMemoryStore()
	}
	tasks := repository.NewTasks(store, logger)
	d := Deps{
		Tasks:      tasks,
		Categories: repository.NewCategories(store, logger),
		Reorder:    repository.NewReorderer(tasks, logger, 2),
		Auth:       mockAuth{},
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&d)
	}
	e := echo.New()
	Register(e, d)
	return &testServer{e: e, store: store, hook: hook}
}

func (s *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer token")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func (s *testServer) createTask(t *testing.T, body string) domain.Task {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Task](t, rec)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestBoardDerivesView(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(t, http.MethodPost, "/api/categories", `{"name":"Work"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: %d %s", rec.Code, rec.Body.String())
	}
	work := decode[domain.Category](t, rec)

	report := s.createTask(t, fmt.Sprintf(`{"title":"Write report","categoryId":%q,"priority":"high","dueDate":"2000-01-01"}`, work.ID))
	s.createTask(t, fmt.Sprintf(`{"title":"File taxes","categoryId":%q,"completed":true}`, work.ID))
	s.createTask(t, `{"title":"Buy milk"}`)

	rec = s.do(t, http.MethodGet, "/api/board?category="+work.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	board := decode[boardResponse](t, rec)
	if len(board.Tasks) != 3 || len(board.Categories) != 1 {
		t.Fatalf("expected full task and category lists, got %d/%d", len(board.Tasks), len(board.Categories))
	}
	if len(board.View.VisibleTasks) != 2 {
		t.Fatalf("expected 2 visible tasks, got %d", len(board.View.VisibleTasks))
	}
	if board.View.Stats.Total != 3 || board.View.Stats.Completed != 1 || board.View.Stats.CompletionRate != 33 {
		t.Fatalf("stats must cover the whole board, got %+v", board.View.Stats)
	}
	if board.View.Counts[work.ID] != 2 {
		t.Fatalf("expected 2 tasks counted for category, got %v", board.View.Counts)
	}
	if board.Filters.Category != work.ID {
		t.Fatalf("expected filters echoed, got %+v", board.Filters)
	}
	if len(board.Due) != 1 || board.Due[report.ID] != domain.DueOverdue {
		t.Fatalf("expected overdue report only, got %v", board.Due)
	}
}

func TestBoardRejectsUnknownFilter(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, http.MethodGet, "/api/board?status=archived", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if _, ok := resp.Fields["status"]; !ok {
		t.Fatalf("expected status field error, got %+v", resp)
	}
}

func TestBoardStoreUnavailable(t *testing.T) {
	s := newTestServer(t, downStore{}, nil)
	rec := s.do(t, http.MethodGet, "/api/board", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode[errorResponse](t, rec)
	if !resp.Retry {
		t.Fatalf("expected retry hint, got %+v", resp)
	}
	if !strings.Contains(resp.Error, domain.ErrLoadFailed.Error()) {
		t.Fatalf("expected load failure, got %q", resp.Error)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing title", body: `{"priority":"low"}`, field: "title"},
		{name: "blank title", body: `{"title":"   "}`, field: "title"},
		{name: "bad priority", body: `{"title":"x","priority":"urgent"}`, field: "priority"},
		{name: "bad due date", body: `{"title":"x","dueDate":"tomorrow"}`, field: "dueDate"},
		{name: "fractional order", body: `{"title":"x","order":1.5}`, field: "order"},
		{name: "unknown field", body: `{"title":"x","owner":"me"}`, field: "owner"},
		{name: "not an object", body: `["x"]`, field: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/tasks", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			resp := decode[errorResponse](t, rec)
			if _, ok := resp.Fields[tt.field]; !ok {
				t.Fatalf("expected %s field error, got %+v", tt.field, resp.Fields)
			}
		})
	}
}

func TestCreateTaskIdempotencyKey(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, nil, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })

	rec := s.do(t, http.MethodPost, "/api/tasks", `{"title":"once"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/api/tasks", `{"title":"once"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a repeated key, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/tasks", "")
	if tasks := decode[[]domain.Task](t, rec); len(tasks) != 1 {
		t.Fatalf("expected one stored task, got %d", len(tasks))
	}
}

func TestCreateFailureReleasesIdempotencyKey(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, downStore{}, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })

	rec := s.do(t, http.MethodPost, "/api/categories", `{"name":"Home"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.Exists("idem:user:categories:k1") {
		t.Fatal("expected key to be released after a failed create")
	}
}

func TestIdempotencyOutageDoesNotBlockCreate(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: m.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	m.Close()

	s := newTestServer(t, nil, func(d *Deps) { d.Deduper = NewRedisDeduper(client, time.Minute) })
	rec := s.do(t, http.MethodPost, "/api/tasks", `{"title":"still works"}`, HeaderIdempotencyKey, "k1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var warned bool
	for _, entry := range s.hook.AllEntries() {
		if entry.Level == log.WarnLevel && entry.Message == "idempotency check failed" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected deduper outage to be logged")
	}
}

func TestUpdateTaskClearsCategory(t *testing.T) {
	s := newTestServer(t, nil, nil)
	task := s.createTask(t, `{"title":"tagged","categoryId":"c1","dueDate":"2024-06-01"}`)
	if task.CategoryID == nil || *task.CategoryID != "c1" {
		t.Fatalf("expected category c1, got %v", task.CategoryID)
	}

	rec := s.do(t, http.MethodPatch, "/api/tasks/"+task.ID, `{"categoryId":null,"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	updated := decode[domain.Task](t, rec)
	if updated.CategoryID != nil {
		t.Fatalf("expected category cleared, got %q", *updated.CategoryID)
	}
	if !updated.Completed || updated.Title != "tagged" {
		t.Fatalf("expected other fields kept, got %+v", updated)
	}
	if updated.DueDate == nil || updated.DueDate.String() != "2024-06-01" {
		t.Fatalf("expected due date kept, got %v", updated.DueDate)
	}
}

func TestUpdateTaskErrors(t *testing.T) {
	s := newTestServer(t, nil, nil)
	task := s.createTask(t, `{"title":"x"}`)

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{name: "unknown task", target: "/api/tasks/missing", body: `{"completed":true}`, want: http.StatusNotFound},
		{name: "empty patch", target: "/api/tasks/" + task.ID, body: `{}`, want: http.StatusBadRequest},
		{name: "created at is immutable", target: "/api/tasks/" + task.ID, body: `{"createdAt":"2024-01-01T00:00:00Z"}`, want: http.StatusBadRequest},
		{name: "negative order", target: "/api/tasks/" + task.ID, body: `{"order":-1}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPatch, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDeleteTask(t *testing.T) {
	s := newTestServer(t, nil, nil)
	task := s.createTask(t, `{"title":"gone soon"}`)

	rec := s.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/tasks/"+task.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting twice, got %d", rec.Code)
	}
}

func TestDeleteCategoryKeepsTasks(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, http.MethodPost, "/api/categories", `{"name":"Errands"}`)
	cat := decode[domain.Category](t, rec)
	task := s.createTask(t, fmt.Sprintf(`{"title":"post office","categoryId":%q}`, cat.ID))

	rec = s.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/tasks/"+task.ID, "")
	got := decode[domain.Task](t, rec)
	if got.CategoryID == nil || *got.CategoryID != cat.ID {
		t.Fatalf("expected dangling category reference kept, got %v", got.CategoryID)
	}
}

func TestCategoryOptions(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := s.do(t, http.MethodGet, "/api/categories/options", "")
	opts := decode[categoryOptionsResponse](t, rec)
	if len(opts.Icons) != len(domain.CategoryIcons) || opts.Colors[0] != domain.CategoryColors[0] {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestReorderTasks(t *testing.T) {
	s := newTestServer(t, nil, nil)
	first := s.createTask(t, `{"title":"first"}`)
	second := s.createTask(t, `{"title":"second"}`)
	third := s.createTask(t, `{"title":"third"}`)

	rec := s.do(t, http.MethodPut, "/api/tasks/order", fmt.Sprintf(`{"ids":[%q]}`, third.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[reorderResponse](t, rec)
	want := []string{third.ID, first.ID, second.ID}
	for i, task := range resp.Tasks {
		if task.ID != want[i] || task.Order != i {
			t.Fatalf("position %d: got %s/%d, want %s/%d", i, task.ID, task.Order, want[i], i)
		}
	}

	rec = s.do(t, http.MethodGet, "/api/tasks", "")
	stored := decode[[]domain.Task](t, rec)
	for i, task := range stored {
		if task.ID != want[i] {
			t.Fatalf("stored order mismatch at %d: %s", i, task.ID)
		}
	}
}

func TestReorderRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, nil, nil)
	task := s.createTask(t, `{"title":"only"}`)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "no ids", method: http.MethodPut, target: "/api/tasks/order", body: `{"ids":[]}`, want: http.StatusBadRequest},
		{name: "unknown id", method: http.MethodPut, target: "/api/tasks/order", body: `{"ids":["nope"]}`, want: http.StatusNotFound},
		{name: "repeated id", method: http.MethodPut, target: "/api/tasks/order", body: fmt.Sprintf(`{"ids":[%q,%q]}`, task.ID, task.ID), want: http.StatusBadRequest},
		{name: "move without target", method: http.MethodPost, target: "/api/tasks/" + task.ID + "/move", body: `{}`, want: http.StatusBadRequest},
		{name: "move out of range", method: http.MethodPost, target: "/api/tasks/" + task.ID + "/move", body: `{"to":5}`, want: http.StatusBadRequest},
		{name: "move unknown task", method: http.MethodPost, target: "/api/tasks/nope/move", body: `{"to":0}`, want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.target, tt.body)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestMoveTaskPersistsStoredOrder(t *testing.T) {
	s := newTestServer(t, nil, nil)
	first := s.createTask(t, `{"title":"first"}`)
	second := s.createTask(t, `{"title":"second"}`)
	third := s.createTask(t, `{"title":"third"}`)

	rec := s.do(t, http.MethodPost, "/api/tasks/"+third.ID+"/move", `{"to":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	want := map[string]int{third.ID: 0, first.ID: 1, second.ID: 2}
	resp, err := s.store.Fetch(context.Background(), storage.CollectionTasks, storage.Query{})
	if err != nil {
		t.Fatalf("fetch stored tasks: %v", err)
	}
	for _, r := range resp.Records {
		task := repository.TaskFromRecord(r)
		if task.Order != want[task.ID] {
			t.Fatalf("stored order of %s: got %d, want %d", task.Title, task.Order, want[task.ID])
		}
	}

	rec = s.do(t, http.MethodPost, "/api/tasks/"+third.ID+"/move", `{"to":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stored := decode[[]domain.Task](t, s.do(t, http.MethodGet, "/api/tasks", ""))
	ids := []string{stored[0].ID, stored[1].ID, stored[2].ID}
	if strings.Join(ids, ",") != strings.Join([]string{first.ID, second.ID, third.ID}, ",") {
		t.Fatalf("unexpected stored arrangement: %v", ids)
	}
}

func TestReorderBodiesUseLimitedDecoder(t *testing.T) {
	s := newTestServer(t, nil, nil)
	task := s.createTask(t, `{"title":"only"}`)

	big := `{"ids":["` + strings.Repeat("x", maxBodyBytes) + `"]}`
	for name, tt := range map[string]struct{ target, method, body string }{
		"oversized order": {target: "/api/tasks/order", method: http.MethodPut, body: big},
		"malformed order": {target: "/api/tasks/order", method: http.MethodPut, body: `{"ids":`},
		"malformed move":  {target: "/api/tasks/" + task.ID + "/move", method: http.MethodPost, body: `{"to":"first"}`},
	} {
		t.Run(name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if body := decode[errorResponse](t, rec); body.Error == "" {
				t.Fatalf("expected error body, got %s", rec.Body.String())
			}
		})
	}
}

type stubReorderer struct {
	result repository.ReorderResult
	err    error
}

func (s stubReorderer) Persist(context.Context, []domain.Task) (repository.ReorderResult, error) {
	return s.result, s.err
}

func (s stubReorderer) Move(context.Context, []domain.Task, int, int) (repository.ReorderResult, error) {
	return s.result, s.err
}

func TestMoveTaskPartialFailure(t *testing.T) {
	pub := &recordingPublisher{}
	reorder := &stubReorderer{}
	var notifier *Notifier
	s := newTestServer(t, nil, func(d *Deps) {
		notifier = NewNotifier(pub, d.Logger, NotifierConfig{Workers: 1, Buffer: 8})
		d.Notifier = notifier
		d.Reorder = reorder
	})
	a := s.createTask(t, `{"title":"a"}`)
	b := s.createTask(t, `{"title":"b"}`)

	reorder.result = repository.ReorderResult{
		Tasks:     []domain.Task{{ID: b.ID, Order: 0}, {ID: a.ID, Order: 1}},
		Persisted: []string{b.ID},
		Failed:    map[string]error{a.ID: errNetwork},
	}
	reorder.err = fmt.Errorf("%w: 1 of 2 tasks not saved", domain.ErrReorderIncomplete)

	rec := s.do(t, http.MethodPost, "/api/tasks/"+b.ID+"/move", `{"to":0}`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[reorderResponse](t, rec)
	if len(resp.Failed) != 1 || resp.Failed[0] != a.ID {
		t.Fatalf("expected failed id %s, got %v", a.ID, resp.Failed)
	}
	if resp.Tasks[0].ID != b.ID || resp.Error == "" {
		t.Fatalf("expected local order and error returned, got %+v", resp)
	}

	notifier.Close()
	names := pub.Names()
	if len(names) != 3 || names[2] != "task-updated" {
		t.Fatalf("expected two creates and one persisted update, got %v", names)
	}
}

func TestMutationsPublishChangeEvents(t *testing.T) {
	pub := &recordingPublisher{}
	var notifier *Notifier
	s := newTestServer(t, nil, func(d *Deps) {
		notifier = NewNotifier(pub, d.Logger, NotifierConfig{Workers: 1, Buffer: 8})
		d.Notifier = notifier
	})

	task := s.createTask(t, `{"title":"notify me"}`)
	s.do(t, http.MethodPatch, "/api/tasks/"+task.ID, `{"completed":true}`)
	s.do(t, http.MethodDelete, "/api/tasks/"+task.ID, "")
	s.do(t, http.MethodPost, "/api/tasks", `{"title":""}`)
	notifier.Close()

	want := []string{"task-created", "task-updated", "task-deleted"}
	got := pub.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestRequireUserRejectsBadToken(t *testing.T) {
	s := newTestServer(t, nil, func(d *Deps) { d.Auth = mockAuth{err: errBadAuthorization} })
	rec := s.do(t, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", rec.Code)
	}
}

func TestRequestTimeoutMapsToGatewayTimeout(t *testing.T) {
	s := newTestServer(t, slowStore{}, func(d *Deps) { d.RequestTimeout = 10 * time.Millisecond })
	rec := s.do(t, http.MethodGet, "/api/tasks/abc", "")
	if rec.Code != http.StatusGatewayTimeout && rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected timeout status, got %d: %s", rec.Code, rec.Body.String())
	}
}

// slowStore blocks until the caller gives up.
type slowStore struct{ downStore }

func (slowStore) FetchByID(ctx context.Context, _, _ string, _ []string) (storage.Response, error) {
	<-ctx.Done()
	return storage.Response{}, ctx.Err()
}
