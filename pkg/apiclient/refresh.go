package apiclient

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/nihongo-study/pkg/metrics"
)

// RefreshFunc выполняет один вызов обновления сессии.
type RefreshFunc func(ctx context.Context) error

// CoordinatorOptions - параметры Coordinator.
type CoordinatorOptions struct {
	Timeout    time.Duration
	MaxQueue   int
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// LoginPath попадает в SessionError неудачного refresh.
	LoginPath string
	// OnFailure вызывается ровно один раз на каждый неудачный refresh.
	OnFailure func(err error)
}

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
)

// Coordinator гарантирует не более одного refresh в полёте.
//
// Запросы, получившие 401 во время refresh, встают в очередь и получают
// результат ведущего. Каждый завершённый refresh увеличивает epoch:
// запрос, отправленный до этого момента, не запускает новый refresh,
// а берёт результат уже завершённого.
type Coordinator struct {
	refresh   RefreshFunc
	timeout   time.Duration
	maxQueue  int
	onFailure func(error)
	loginPath string
	log       *slog.Logger
	metrics   *coordinatorMetrics

	mu      sync.Mutex
	state   refreshState
	waiters []chan error
	epoch   uint64
	lastErr error
}

type coordinatorMetrics struct {
	refreshes *prometheus.CounterVec
	waiting   prometheus.Gauge
	rejected  prometheus.Counter
}

// newCoordinatorMetrics создаёт метрики и регистрирует их в reg.
// Клиенты с общим Registerer разделяют одни и те же коллекторы.
func newCoordinatorMetrics(reg prometheus.Registerer, lg *slog.Logger) *coordinatorMetrics {
	m := &coordinatorMetrics{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiclient",
			Name:      "session_refresh_total",
			Help:      "Session refresh calls by result.",
		}, []string{"result"}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "apiclient",
			Name:      "session_refresh_waiters",
			Help:      "Requests queued behind an in-flight refresh.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "apiclient",
			Name:      "session_refresh_queue_rejected_total",
			Help:      "Requests rejected because the refresh queue was full.",
		}),
	}

	var errs []error
	var err error
	m.refreshes, err = metrics.Register(reg, m.refreshes)
	errs = append(errs, err)
	m.waiting, err = metrics.Register(reg, m.waiting)
	errs = append(errs, err)
	m.rejected, err = metrics.Register(reg, m.rejected)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		lg.Warn("refresh_metrics_register_failed", slog.String("err", err.Error()))
	}

	return m
}

// NewCoordinator создаёт координатор в состоянии idle с пустой очередью.
func NewCoordinator(fn RefreshFunc, opts CoordinatorOptions) *Coordinator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRefreshTimeout
	}

	maxQueue := opts.MaxQueue
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueue
	}

	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}

	onFailure := opts.OnFailure
	if onFailure == nil {
		onFailure = func(error) {}
	}

	return &Coordinator{
		refresh:   fn,
		timeout:   timeout,
		maxQueue:  maxQueue,
		onFailure: onFailure,
		loginPath: opts.LoginPath,
		log:       lg,
		metrics:   newCoordinatorMetrics(opts.Registerer, lg),
	}
}

// Epoch возвращает число завершённых refresh. Снимается перед отправкой запроса.
func (c *Coordinator) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.epoch
}

// Refreshing сообщает, идёт ли сейчас refresh.
func (c *Coordinator) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateRefreshing
}

// Pending возвращает число запросов в очереди.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.waiters)
}

// Refresh обновляет сессию или дожидается уже идущего обновления.
//
// seen - значение Epoch(), снятое до отправки запроса, получившего 401.
// Если с тех пор refresh уже завершился, возвращается его результат без нового вызова.
// nil означает, что сессия обновлена и запрос можно повторить.
func (c *Coordinator) Refresh(ctx context.Context, seen uint64) error {
	leader, wait, err := c.acquireOrWait(seen)
	if err != nil {
		return err
	}

	if leader {
		return c.lead(ctx)
	}

	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		// Канал буферизован, ведущий не заблокируется на отправке.
		c.dropWaiter(wait)
		return ctx.Err()
	}
}

// dropWaiter убирает ушедшего ожидающего из очереди, освобождая место под MaxQueue.
// Если refresh уже раздал результат, ничего не делает.
func (c *Coordinator) dropWaiter(wait <-chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, ch := range c.waiters {
		if ch == wait {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.metrics.waiting.Dec()
			return
		}
	}
}

// acquireOrWait либо делает вызывающего ведущим, либо возвращает канал с результатом.
func (c *Coordinator) acquireOrWait(seen uint64) (bool, <-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != seen && c.state == stateIdle {
		ch := make(chan error, 1)
		ch <- c.lastErr
		return false, ch, nil
	}

	if c.state == stateRefreshing {
		if len(c.waiters) >= c.maxQueue {
			c.metrics.rejected.Inc()
			return false, nil, ErrRefreshQueueFull
		}

		ch := make(chan error, 1)
		c.waiters = append(c.waiters, ch)
		c.metrics.waiting.Inc()
		return false, ch, nil
	}

	c.state = stateRefreshing
	return true, nil, nil
}

// lead запускает refresh в отдельной горутине и ждёт его результат.
// Отмена ctx ведущего возвращает ему ctx.Err(), но refresh доводится до конца
// для остальных ожидающих.
func (c *Coordinator) lead(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- c.run(context.WithoutCancel(ctx)) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run выполняет один refresh с таймаутом и раздаёт результат очереди.
func (c *Coordinator) run(ctx context.Context) error {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	c.log.Debug("session_refresh_start")

	var err error
	if rerr := c.refresh(rctx); rerr != nil {
		err = &SessionError{Op: "refresh", LoginPath: c.loginPath, Err: rerr}
	}

	n := c.release(err)

	if err != nil {
		c.metrics.refreshes.WithLabelValues("failure").Inc()
		c.log.Warn("session_refresh_failed",
			slog.Int("waiters", n),
			slog.Duration("duration", time.Since(start)),
			slog.String("err", err.Error()),
		)
		c.onFailure(err)
		return err
	}

	c.metrics.refreshes.WithLabelValues("success").Inc()
	c.log.Info("session_refreshed",
		slog.Int("waiters", n),
		slog.Duration("duration", time.Since(start)),
	)

	return nil
}

// release возвращает координатор в idle и раздаёт результат всем ожидающим.
func (c *Coordinator) release(err error) int {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.state = stateIdle
	c.epoch++
	c.lastErr = err
	c.mu.Unlock()

	c.metrics.waiting.Sub(float64(len(waiters)))
	for _, ch := range waiters {
		ch <- err
	}

	return len(waiters)
}
