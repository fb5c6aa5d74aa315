package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/sokhunov/Distribution-Interface/internal/jobs"
	"github.com/sokhunov/Distribution-Interface/internal/ledger"
	"github.com/sokhunov/Distribution-Interface/internal/shared"
)

type stubReconciler struct {
	added int
	err   error
	calls int
}

func (s *stubReconciler) Reconcile(context.Context) (int, error) {
	s.calls++
	return s.added, s.err
}

type stubRunner struct {
	res   ledger.Result
	err   error
	calls int
}

func (s *stubRunner) Run(context.Context) (ledger.Result, error) {
	s.calls++
	return s.res, s.err
}

type stubWatermark struct {
	day time.Time
}

func (s stubWatermark) MaxSaleDate(context.Context) (time.Time, bool, error) {
	return s.day, !s.day.IsZero(), nil
}

func newTask(t *testing.T, build func(string) (*asynq.Task, error)) *asynq.Task {
	t.Helper()
	task, err := build("test")
	require.NoError(t, err)
	return task
}

func TestSyncTasks(t *testing.T) {
	goods := newTask(t, NewGoodsSyncTask)
	require.Equal(t, TaskGoodsSync, goods.Type())
	sales := newTask(t, NewSalesSyncTask)
	require.Equal(t, TaskSalesSync, sales.Type())

	payload, err := decodeSyncPayload(sales)
	require.NoError(t, err)
	require.Equal(t, "test", payload.RequestedBy)
	require.False(t, payload.RequestedAt.IsZero())

	payload, err = decodeSyncPayload(asynq.NewTask(TaskSalesSync, nil))
	require.NoError(t, err)
	require.Empty(t, payload.RequestedBy)
}

func TestGoodsSyncJobHandle(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	reconciler := &stubReconciler{added: 4}
	job := NewGoodsSyncJob(reconciler, nil, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), newTask(t, NewGoodsSyncTask)))
	require.Equal(t, 1, reconciler.calls)
}

func TestGoodsSyncJobFailureIsFinal(t *testing.T) {
	gatewayErr := shared.Gateway("query", errors.New("timeout"))
	job := NewGoodsSyncJob(&stubReconciler{err: gatewayErr}, nil, nil, nil)

	err := job.Handle(context.Background(), newTask(t, NewGoodsSyncTask))
	require.ErrorIs(t, err, shared.ErrGateway)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSalesSyncJobFailureIsFinal(t *testing.T) {
	cases := map[string]error{
		"gateway": shared.Gateway("query", errors.New("connection refused")),
		"store":   shared.Store("append sales", errors.New("disk full")),
	}
	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			runner := &stubRunner{err: cause}
			job := NewSalesSyncJob(runner, nil, nil, nil, nil)

			err := job.Handle(context.Background(), newTask(t, NewSalesSyncTask))
			require.ErrorIs(t, err, cause)
			require.ErrorIs(t, err, asynq.SkipRetry)
			require.Equal(t, 1, runner.calls)
		})
	}
}

func TestGoodsSyncJobRejectsPayload(t *testing.T) {
	reconciler := &stubReconciler{}
	job := NewGoodsSyncJob(reconciler, nil, nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskGoodsSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, reconciler.calls)
}

func TestSalesSyncJobHandle(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	runner := &stubRunner{res: ledger.Result{
		Start:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		Fetched: 3,
		Written: 3,
	}}
	job := NewSalesSyncJob(runner, stubWatermark{day: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)}, nil, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), newTask(t, NewSalesSyncTask)))
	require.Equal(t, 1, runner.calls)

	runner.res = ledger.Result{Skipped: true}
	require.NoError(t, job.Handle(context.Background(), newTask(t, NewSalesSyncTask)))
}

func TestSalesSyncJobSkipsRetryOnPrecondition(t *testing.T) {
	runner := &stubRunner{err: shared.Precondition("a sales period is required")}
	job := NewSalesSyncJob(runner, nil, nil, nil, nil)

	err := job.Handle(context.Background(), newTask(t, NewSalesSyncTask))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, shared.ErrPrecondition)
}

func TestSalesSyncJobHonoursLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lock := shared.NewRunLock(client, time.Minute)

	release, err := lock.Acquire(context.Background(), "sales")
	require.NoError(t, err)

	runner := &stubRunner{}
	job := NewSalesSyncJob(runner, nil, lock, nil, nil)
	err = job.Handle(context.Background(), newTask(t, NewSalesSyncTask))
	require.ErrorIs(t, err, shared.ErrLocked)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, runner.calls)

	require.NoError(t, release(context.Background()))
	require.NoError(t, job.Handle(context.Background(), newTask(t, NewSalesSyncTask)))
	require.Equal(t, 1, runner.calls)
	require.False(t, mr.Exists(shared.SyncLockKey("sales")))
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHandlerHealth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 2, Retry: 1}}, nil, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body queueHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, queueHealth{Queue: QueueDefault, Pending: 2, Retry: 1}, body)

	h = NewHandler(stubInspector{err: errors.New("redis down")}, nil, nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h = NewHandler(nil, nil, nil)
	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/goods/run", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

type stubEnqueuer struct {
	err  error
	jobs []string
}

func (s *stubEnqueuer) EnqueueGoodsSync(_ context.Context, by string) (*asynq.TaskInfo, error) {
	s.jobs = append(s.jobs, TaskGoodsSync)
	return &asynq.TaskInfo{ID: "g-1", Type: TaskGoodsSync, Queue: QueueDefault}, s.err
}

func (s *stubEnqueuer) EnqueueSalesSync(_ context.Context, by string) (*asynq.TaskInfo, error) {
	s.jobs = append(s.jobs, TaskSalesSync)
	return &asynq.TaskInfo{ID: "s-1", Type: TaskSalesSync, Queue: QueueDefault}, s.err
}

func TestHandlerTrigger(t *testing.T) {
	enq := &stubEnqueuer{}
	routes := NewHandler(nil, enq, nil).Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sales/run", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, triggerResponse{ID: "s-1", Type: TaskSalesSync, Queue: QueueDefault}, body)

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payroll/run", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []string{TaskSalesSync}, enq.jobs)

	enq.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/goods/run", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
