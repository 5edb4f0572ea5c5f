package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskflow-api/domain"
	"taskflow-api/repository"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	h := &handlers{deps: d}

	e.GET("/healthz", healthz)

	g := e.Group("/api",
		RequestMetricsMiddleware(d.Logger),
		TimeoutMiddleware(d.RequestTimeout),
		GzipRequestMiddleware(),
		requireUser(d.Auth),
	)
	g.GET("/board", h.getBoard)

	g.GET("/tasks", h.listTasks)
	g.POST("/tasks", h.createTask)
	g.PUT("/tasks/order", h.reorderTasks)
	g.GET("/tasks/:id", h.getTask)
	g.PATCH("/tasks/:id", h.updateTask)
	g.DELETE("/tasks/:id", h.deleteTask)
	g.POST("/tasks/:id/move", h.moveTask)

	g.GET("/categories", h.listCategories)
	g.POST("/categories", h.createCategory)
	g.GET("/categories/options", categoryOptions)
	g.GET("/categories/:id", h.getCategory)
	g.PATCH("/categories/:id", h.updateCategory)
	g.DELETE("/categories/:id", h.deleteCategory)
}

type handlers struct {
	deps Deps
}

func healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func categoryOptions(c echo.Context) error {
	return c.JSON(http.StatusOK, categoryOptionsResponse{Icons: domain.CategoryIcons, Colors: domain.CategoryColors})
}

func (h *handlers) getBoard(c echo.Context) error {
	f := domain.Filters{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Search:   c.QueryParam("search"),
		Priority: strings.ToLower(strings.TrimSpace(c.QueryParam("priority"))),
		Status:   strings.ToLower(strings.TrimSpace(c.QueryParam("status"))),
	}
	if err := f.Validate(); err != nil {
		return writeError(c, err)
	}

	var (
		snap repository.Snapshot
		err  error
	)
	timeStore(c, func() {
		snap, err = repository.Load(c.Request().Context(), h.deps.Tasks, h.deps.Categories)
	})
	if err != nil {
		h.deps.Logger.WithError(err).Warn("board load failed")
		return writeError(c, err)
	}

	view := domain.Derive(snap.Tasks, snap.Categories, f)
	metricsFrom(c).SetItems(len(view.VisibleTasks))
	return c.JSON(http.StatusOK, boardResponse{
		Tasks:      snap.Tasks,
		Categories: snap.Categories,
		Filters:    f,
		View:       view,
		Due:        dueStates(view.VisibleTasks, time.Now()),
	})
}

// dueStates classifies the due date of every visible task that has one.
func dueStates(tasks []domain.Task, now time.Time) map[string]domain.DueState {
	out := make(map[string]domain.DueState)
	for _, t := range tasks {
		if s := domain.DueStatus(t.DueDate, now); s != domain.DueNone {
			out[t.ID] = s
		}
	}
	return out
}

func (h *handlers) listTasks(c echo.Context) error {
	var (
		tasks []domain.Task
		err   error
	)
	timeStore(c, func() { tasks, err = h.deps.Tasks.GetAll(c.Request().Context()) })
	if err != nil {
		return writeError(c, err)
	}
	metricsFrom(c).SetItems(len(tasks))
	return c.JSON(http.StatusOK, tasks)
}

func (h *handlers) getTask(c echo.Context) error {
	var (
		task domain.Task
		err  error
	)
	timeStore(c, func() { task, err = h.deps.Tasks.GetByID(c.Request().Context(), c.Param("id")) })
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) createTask(c echo.Context) error {
	body, err := decodeObject(c)
	if err != nil {
		return writeError(c, err)
	}
	patch, err := taskPatchFromBody(body)
	if err != nil {
		return writeError(c, err)
	}

	release, dup := h.claimIdempotencyKey(c, "tasks")
	if dup {
		return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
	}

	var task domain.Task
	timeStore(c, func() { task, err = h.deps.Tasks.Create(c.Request().Context(), patch) })
	if err != nil {
		release()
		return writeError(c, err)
	}
	h.notify(domain.EntityTask, domain.ChangeCreated, task.ID, task)
	return c.JSON(http.StatusCreated, task)
}

func (h *handlers) updateTask(c echo.Context) error {
	body, err := decodeObject(c)
	if err != nil {
		return writeError(c, err)
	}
	patch, err := taskPatchFromBody(body)
	if err != nil {
		return writeError(c, err)
	}

	var task domain.Task
	timeStore(c, func() { task, err = h.deps.Tasks.Update(c.Request().Context(), c.Param("id"), patch) })
	if err != nil {
		return writeError(c, err)
	}
	h.notify(domain.EntityTask, domain.ChangeUpdated, task.ID, task)
	return c.JSON(http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context) error {
	id := c.Param("id")
	var (
		ok  bool
		err error
	)
	timeStore(c, func() { ok, err = h.deps.Tasks.Delete(c.Request().Context(), id) })
	if err != nil {
		return writeError(c, err)
	}
	if !ok {
		return writeError(c, domain.ErrDeleteFailed)
	}
	h.notify(domain.EntityTask, domain.ChangeDeleted, id, nil)
	return c.NoContent(http.StatusNoContent)
}

// reorderTasks places the listed ids first, in order, and persists the
// resulting dense order.
func (h *handlers) reorderTasks(c echo.Context) error {
	var req reorderRequest
	if err := decodeBody(c, &req); err != nil || len(req.IDs) == 0 {
		return writeError(c, domain.Invalid("ids", "must list at least one task id"))
	}

	var tasks []domain.Task
	var err error
	timeStore(c, func() { tasks, err = h.deps.Tasks.GetAll(c.Request().Context()) })
	if err != nil {
		return writeError(c, err)
	}
	arranged, err := domain.ArrangeByIDs(tasks, req.IDs)
	if err != nil {
		return writeError(c, err)
	}

	var res repository.ReorderResult
	timeStore(c, func() { res, err = h.deps.Reorder.Persist(c.Request().Context(), arranged) })
	return h.reorderResponse(c, res, err)
}

func (h *handlers) moveTask(c echo.Context) error {
	var req moveRequest
	if err := decodeBody(c, &req); err != nil || req.To == nil {
		return writeError(c, domain.Invalid("to", "is required"))
	}

	var tasks []domain.Task
	var err error
	timeStore(c, func() { tasks, err = h.deps.Tasks.GetAll(c.Request().Context()) })
	if err != nil {
		return writeError(c, err)
	}
	from := -1
	id := c.Param("id")
	for i, t := range tasks {
		if t.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return writeError(c, domain.ErrNotFound)
	}

	var res repository.ReorderResult
	timeStore(c, func() { res, err = h.deps.Reorder.Move(c.Request().Context(), tasks, from, *req.To) })
	return h.reorderResponse(c, res, err)
}

func (h *handlers) reorderResponse(c echo.Context, res repository.ReorderResult, err error) error {
	if err != nil && !errors.Is(err, domain.ErrReorderIncomplete) {
		return writeError(c, err)
	}
	for _, id := range res.Persisted {
		for _, t := range res.Tasks {
			if t.ID == id {
				h.notify(domain.EntityTask, domain.ChangeUpdated, id, t)
				break
			}
		}
	}
	if err != nil {
		metricsFrom(c).SetErrorStage("reorder_incomplete")
		return c.JSON(http.StatusMultiStatus, reorderResponse{Tasks: res.Tasks, Failed: res.FailedIDs(), Error: err.Error()})
	}
	return c.JSON(http.StatusOK, reorderResponse{Tasks: res.Tasks})
}

func (h *handlers) listCategories(c echo.Context) error {
	var (
		categories []domain.Category
		err        error
	)
	timeStore(c, func() { categories, err = h.deps.Categories.GetAll(c.Request().Context()) })
	if err != nil {
		return writeError(c, err)
	}
	metricsFrom(c).SetItems(len(categories))
	return c.JSON(http.StatusOK, categories)
}

func (h *handlers) getCategory(c echo.Context) error {
	var (
		category domain.Category
		err      error
	)
	timeStore(c, func() { category, err = h.deps.Categories.GetByID(c.Request().Context(), c.Param("id")) })
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, category)
}

func (h *handlers) createCategory(c echo.Context) error {
	body, err := decodeObject(c)
	if err != nil {
		return writeError(c, err)
	}
	patch, err := categoryPatchFromBody(body)
	if err != nil {
		return writeError(c, err)
	}

	release, dup := h.claimIdempotencyKey(c, "categories")
	if dup {
		return c.JSON(http.StatusConflict, errorResponse{Error: "duplicate request"})
	}

	var category domain.Category
	timeStore(c, func() { category, err = h.deps.Categories.Create(c.Request().Context(), patch) })
	if err != nil {
		release()
		return writeError(c, err)
	}
	h.notify(domain.EntityCategory, domain.ChangeCreated, category.ID, category)
	return c.JSON(http.StatusCreated, category)
}

func (h *handlers) updateCategory(c echo.Context) error {
	body, err := decodeObject(c)
	if err != nil {
		return writeError(c, err)
	}
	patch, err := categoryPatchFromBody(body)
	if err != nil {
		return writeError(c, err)
	}

	var category domain.Category
	timeStore(c, func() { category, err = h.deps.Categories.Update(c.Request().Context(), c.Param("id"), patch) })
	if err != nil {
		return writeError(c, err)
	}
	h.notify(domain.EntityCategory, domain.ChangeUpdated, category.ID, category)
	return c.JSON(http.StatusOK, category)
}

// deleteCategory leaves tasks pointing at the category as they are.
func (h *handlers) deleteCategory(c echo.Context) error {
	id := c.Param("id")
	var (
		ok  bool
		err error
	)
	timeStore(c, func() { ok, err = h.deps.Categories.Delete(c.Request().Context(), id) })
	if err != nil {
		return writeError(c, err)
	}
	if !ok {
		return writeError(c, domain.ErrDeleteFailed)
	}
	h.notify(domain.EntityCategory, domain.ChangeDeleted, id, nil)
	return c.NoContent(http.StatusNoContent)
}

// claimIdempotencyKey records the request's idempotency key. It reports a
// duplicate when the key was seen before; release forgets the key again.
// Deduper outages are logged and the request proceeds.
func (h *handlers) claimIdempotencyKey(c echo.Context, resource string) (release func(), dup bool) {
	release = func() {}
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if h.deps.Deduper == nil || key == "" {
		return release, false
	}
	ctx := context.WithoutCancel(c.Request().Context())
	scope := userFrom(c) + ":" + resource
	added, err := h.deps.Deduper.Add(ctx, scope, key)
	if err != nil {
		h.deps.Logger.WithError(err).WithField("scope", scope).Warn("idempotency check failed")
		return release, false
	}
	if !added {
		metricsFrom(c).SetErrorStage("duplicate")
		return release, true
	}
	return func() {
		if rerr := h.deps.Deduper.Remove(ctx, scope, key); rerr != nil {
			h.deps.Logger.WithError(rerr).WithField("scope", scope).Error("idempotency rollback failed")
		}
	}, false
}

func (h *handlers) notify(entityType, changeType, id string, data any) {
	if h.deps.Notifier == nil {
		return
	}
	h.deps.Notifier.Notify(newChangeEvent(entityType, changeType, id, data))
}
