package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/trademate/internal/api/job"
	"github.com/newthinker/trademate/internal/api/response"
	"github.com/newthinker/trademate/internal/backtest"
	"github.com/newthinker/trademate/internal/collector"
	"github.com/newthinker/trademate/internal/core"
	log "github.com/newthinker/trademate/internal/logger"
	"github.com/newthinker/trademate/internal/metrics"
	"github.com/newthinker/trademate/internal/notifier"
	"github.com/newthinker/trademate/internal/strategy"
	"go.uber.org/zap"
)

const (
	jobType         = "backtest"
	defaultTimeout  = 2 * time.Minute
	notifyTimeout   = 30 * time.Second
	maxRequestBytes = 1 << 20
)

// Runner executes one backtest request.
type Runner interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Result, error)
}

// Archiver persists finished results and returns where they were stored.
type Archiver interface {
	Save(ctx context.Context, id string, res *backtest.Result) (string, error)
}

// Notifier receives the outcome of asynchronous jobs.
type Notifier interface {
	NotifyAll(ctx context.Context, event notifier.Event) map[string]error
}

// BacktestRequest is the request body for running a backtest.
type BacktestRequest struct {
	Symbol     string         `json:"symbol"`
	Strategy   string         `json:"strategy"`
	Period     string         `json:"period,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// toRequest validates the body and converts it for the engine.
func (r BacktestRequest) toRequest() (backtest.Request, error) {
	if strings.TrimSpace(r.Symbol) == "" {
		return backtest.Request{}, core.Errorf(core.ErrBadRequest, "symbol is required")
	}
	if strings.TrimSpace(r.Strategy) == "" {
		return backtest.Request{}, core.Errorf(core.ErrBadRequest, "strategy is required")
	}
	// An empty period is left for the backtester's configured default.
	var period collector.Period
	if strings.TrimSpace(r.Period) != "" {
		p, err := collector.ParsePeriod(r.Period)
		if err != nil {
			return backtest.Request{}, err
		}
		period = p
	}
	return backtest.Request{
		Symbol:   strings.TrimSpace(r.Symbol),
		Strategy: r.Strategy,
		Period:   period,
		Params:   r.Parameters,
	}, nil
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobs    *job.Store
	runner  Runner
	archive Archiver
	notify  Notifier
	metrics *metrics.Registry
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// Option configures a BacktestHandler.
type Option func(*BacktestHandler)

// WithArchive saves every successful result.
func WithArchive(a Archiver) Option {
	return func(h *BacktestHandler) { h.archive = a }
}

// WithNotifier announces finished asynchronous jobs.
func WithNotifier(n Notifier) Option {
	return func(h *BacktestHandler) { h.notify = n }
}

// WithMetrics reports the number of active jobs.
func WithMetrics(reg *metrics.Registry) Option {
	return func(h *BacktestHandler) { h.metrics = reg }
}

// WithTimeout bounds each backtest run.
func WithTimeout(d time.Duration) Option {
	return func(h *BacktestHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *BacktestHandler) { h.logger = log.OrNop(l) }
}

// NewBacktestHandler creates a new backtest handler.
func NewBacktestHandler(jobs *job.Store, runner Runner, opts ...Option) *BacktestHandler {
	h := &BacktestHandler{
		jobs:    jobs,
		runner:  runner,
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func decode(w http.ResponseWriter, r *http.Request) (backtest.Request, error) {
	var body BacktestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		return backtest.Request{}, core.WrapError(core.ErrBadRequest, err)
	}
	return body.toRequest()
}

// Test runs a backtest synchronously and returns its result.
func (h *BacktestHandler) Test(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		response.Fail(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.save(ctx, uuid.NewString(), result)

	response.JSON(w, http.StatusOK, result)
}

// Create starts a new backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		response.Fail(w, err)
		return
	}
	// Reject unknown strategies and bad parameters before queuing.
	if _, err := strategy.Parse(req.Strategy, req.Params); err != nil {
		response.Fail(w, err)
		return
	}

	j, err := h.jobs.Create(jobType)
	if err != nil {
		response.Fail(w, err)
		return
	}
	h.reportActive()

	h.wg.Add(1)
	go h.runJob(j.ID, req)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

// runJob executes the backtest and updates job status.
func (h *BacktestHandler) runJob(id string, req backtest.Request) {
	defer h.wg.Done()
	defer h.reportActive()

	h.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	result, err := h.runner.Run(ctx, req)
	if err != nil {
		h.jobs.Update(id, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Err = err
		})
		h.announce(notifier.Failed(id, req, err))
		return
	}

	path := h.save(ctx, id, result)
	h.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = result
		j.ArchivePath = path
	})
	h.announce(notifier.Completed(id, result, path))
}

// announce delivers event to the configured notifiers, logging failures.
func (h *BacktestHandler) announce(event notifier.Event) {
	if h.notify == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	for name, err := range h.notify.NotifyAll(ctx, event) {
		h.logger.Warn("job notification failed",
			zap.String("notifier", name),
			zap.String("id", event.JobID),
			zap.Error(err))
	}
}

// save archives result when an archive is configured. Failures are logged
// and never fail the backtest.
func (h *BacktestHandler) save(ctx context.Context, id string, result *backtest.Result) string {
	if h.archive == nil {
		return ""
	}
	path, err := h.archive.Save(ctx, id, result)
	if err != nil {
		h.logger.Warn("archiving result failed",
			zap.String("id", id),
			zap.String("symbol", result.Symbol),
			zap.Error(err))
		return ""
	}
	return path
}

func (h *BacktestHandler) reportActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(jobType, h.jobs.Active())
	}
}

// jobView is the wire form of a job.
type jobView struct {
	JobID       string                `json:"job_id"`
	Status      job.Status            `json:"status"`
	Result      any                   `json:"result,omitempty"`
	Error       *response.ErrorDetail `json:"error,omitempty"`
	ArchivePath string                `json:"archive_path,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func viewOf(j job.Job, withResult bool) jobView {
	v := jobView{
		JobID:       j.ID,
		Status:      j.Status,
		ArchivePath: j.ArchivePath,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if withResult && j.Status == job.StatusComplete {
		v.Result = j.Result
	}
	if j.Status == job.StatusFailed && j.Err != nil {
		detail := response.Detail(j.Err)
		v.Error = &detail
	}
	return v
}

// Get returns the status of a backtest job, with its result once complete.
func (h *BacktestHandler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, viewOf(j, true))
}

// List returns every known job without results.
func (h *BacktestHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, viewOf(j, false))
	}
	response.JSON(w, http.StatusOK, views)
}

// Wait blocks until every started job has finished.
func (h *BacktestHandler) Wait() {
	h.wg.Wait()
}
