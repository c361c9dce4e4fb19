package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Martiniu70/control-room-sub000/component"
	"github.com/Martiniu70/control-room-sub000/config"
	"github.com/Martiniu70/control-room-sub000/errors"
	"github.com/Martiniu70/control-room-sub000/metric"
	"github.com/Martiniu70/control-room-sub000/pkg/buffer"
	"github.com/Martiniu70/control-room-sub000/store"
	"github.com/Martiniu70/control-room-sub000/stream"
	"github.com/Martiniu70/control-room-sub000/telemetry"
	"github.com/Martiniu70/control-room-sub000/window"
)

// Session owns one logical ingestion session: the connection manager, the
// bounded frame queue, the router, and the stores. All store mutation happens
// on the session's single processing goroutine, in frame arrival order; the
// rendering layer consumes pull-based snapshots.
type Session struct {
	name    string
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	manager *stream.Manager
	router  *Router
	store   *store.ChannelStore
	feed    *store.AnomalyFeed
	queue   buffer.Buffer[[]byte]

	shutdown     chan struct{}
	shutdownOnce sync.Once
	started      atomic.Bool
	startTime    time.Time
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	lifecycleMu  sync.Mutex

	framesProcessed atomic.Int64
	errorCount      atomic.Int64
	lastActivity    atomic.Value // stores time.Time
}

var (
	_ component.LifecycleComponent = (*Session)(nil)
	_ component.Discoverable       = (*Session)(nil)
)

// NewSession wires a session from configuration. The metrics registry and
// publisher are optional.
func NewSession(
	cfg *config.Config,
	channels map[telemetry.ChannelKey]config.ChannelSpec,
	logger *slog.Logger,
	registry *metric.MetricsRegistry,
	publisher Publisher,
) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var metrics *metric.Metrics
	if registry != nil {
		metrics = registry.CoreMetrics()
	}

	channelStore := store.NewChannelStore()
	feed := store.NewAnomalyFeed(cfg.Session.AnomalyFeedSize)

	router, err := NewRouter(channels, channelStore, feed, logger, metrics, publisher)
	if err != nil {
		return nil, err
	}

	queueOpts := []buffer.Option[[]byte]{
		buffer.WithOverflowPolicy[[]byte](buffer.DropOldest),
	}
	if registry != nil {
		queueOpts = append(queueOpts, buffer.WithMetrics[[]byte](registry, "session"))
	}
	if metrics != nil {
		queueOpts = append(queueOpts, buffer.WithDropCallback[[]byte](func([]byte) {
			metrics.RecordFrameDropped("queue_full")
		}))
	}

	queue, err := buffer.NewCircularBuffer(cfg.Session.QueueSize, queueOpts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "session", "NewSession", "create frame queue")
	}

	s := &Session{
		name:     "session",
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		metrics:  metrics,
		router:   router,
		store:    channelStore,
		feed:     feed,
		queue:    queue,
		shutdown: make(chan struct{}),
	}

	streamCfg := stream.Config{
		URL:                  cfg.Stream.URL,
		ReconnectDelay:       cfg.Stream.ReconnectDelay,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Stream.HandshakeTimeout,
	}

	manager, err := stream.NewManager("stream", streamCfg, stream.Callbacks{
		OnMessage: s.enqueueFrame,
		OnClose: func(reason string) {
			s.logger.Warn("stream closed", "reason", reason)
		},
		OnError: func(err error) {
			s.errorCount.Add(1)
		},
	}, logger, metrics)
	if err != nil {
		return nil, err
	}
	s.manager = manager

	return s, nil
}

// enqueueFrame hands one raw frame from the transport callback to the
// processing goroutine. Must never block; the queue's DropOldest policy
// bounds memory if the consumer stalls.
func (s *Session) enqueueFrame(data []byte) {
	if err := s.queue.Write(data); err != nil {
		s.errorCount.Add(1)
	}
}

// processFrames is the single owner of all store mutation.
func (s *Session) processFrames(ctx context.Context) {
	defer s.wg.Done()
	defer s.drainQueue()

	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, data := range s.queue.ReadBatch(64) {
				s.router.HandleRaw(data)
				s.framesProcessed.Add(1)
				s.lastActivity.Store(time.Now())
			}
		}
	}
}

// drainQueue routes whatever is still queued at shutdown, bounded by a
// timeout. Buffers stay intact for inspection afterwards.
func (s *Session) drainQueue() {
	timeout := time.NewTimer(2 * time.Second)
	defer timeout.Stop()

	for {
		select {
		case <-timeout.C:
			return
		default:
			data, ok := s.queue.Read()
			if !ok {
				return
			}
			s.router.HandleRaw(data)
			s.framesProcessed.Add(1)
		}
	}
}

// Lifecycle interface implementation

// Initialize validates the wiring.
func (s *Session) Initialize() error {
	return s.manager.Initialize()
}

// Start launches the processing goroutine and opens the stream connection.
func (s *Session) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started.Load() {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "session", "Start", "check started state")
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.processFrames(sessionCtx)

	if err := s.manager.Start(sessionCtx); err != nil {
		cancel()
		return err
	}

	s.startTime = time.Now()
	s.started.Store(true)
	s.logger.Info("session started", "url", s.cfg.Stream.URL)
	return nil
}

// Stop tears the session down: disconnect (cancelling any pending reconnect),
// stop processing, drain the queue. Retained buffers are left intact.
func (s *Session) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started.Load() {
		return nil
	}

	if err := s.manager.Stop(timeout); err != nil {
		s.logger.Warn("stream stop", "error", err)
	}

	s.shutdownOnce.Do(func() {
		close(s.shutdown)
	})
	s.cancel()

	doneCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(timeout):
		return errors.WrapTransient(
			fmt.Errorf("shutdown timeout after %v", timeout),
			"session", "Stop", "wait for processor",
		)
	}

	_ = s.queue.Close()
	s.started.Store(false)
	s.logger.Info("session stopped")
	return nil
}

// Connect manually (re)opens the stream, resetting the reconnect attempt
// counter. Recovers from the terminal failed state.
func (s *Session) Connect(ctx context.Context) error {
	return s.manager.Connect(ctx)
}

// Disconnect closes the stream and cancels any pending reconnect. Stores are
// not cleared; only new data stops arriving.
func (s *Session) Disconnect() {
	s.manager.Disconnect()
}

// Snapshot API for the rendering layer

// ConnectionState returns the stream connection state.
func (s *Session) ConnectionState() stream.ConnectionState {
	return s.manager.State()
}

// Anomalies returns the feed entries, newest first.
func (s *Session) Anomalies() []store.AnomalyEntry {
	return s.feed.Entries()
}

// Latest returns the most recent point for a channel.
func (s *Session) Latest(key telemetry.ChannelKey) (telemetry.SignalPoint, bool) {
	return s.store.Latest(key)
}

// Channels returns every channel seen so far.
func (s *Session) Channels() []telemetry.ChannelKey {
	return s.store.Keys()
}

// SeriesPoints returns the retained windowed series for a channel.
func (s *Session) SeriesPoints(key telemetry.ChannelKey) ([]window.Point, bool) {
	series, ok := s.router.Series(key)
	if !ok {
		return nil, false
	}
	return series.Points(), true
}

// SeriesDomain returns the visible time domain for a channel's series.
func (s *Session) SeriesDomain(key telemetry.ChannelKey) (start, end float64, ok bool) {
	series, found := s.router.Series(key)
	if !found {
		return 0, 0, false
	}
	start, end = series.Domain()
	return start, end, true
}

// MultiSeriesSnapshot returns the per-sub-channel retained series for a
// multi-channel signal (EEG raw).
func (s *Session) MultiSeriesSnapshot(key telemetry.ChannelKey) (map[string][]window.Point, bool) {
	multi, ok := s.router.MultiSeries(key)
	if !ok {
		return nil, false
	}
	return multi.Snapshot(), true
}

// Heartbeat returns the latest upstream heartbeat bookkeeping.
func (s *Session) Heartbeat() HeartbeatInfo {
	return s.router.Heartbeat()
}

// Discoverable interface implementation

// Meta returns component metadata.
func (s *Session) Meta() component.Metadata {
	return component.Metadata{
		Name:        s.name,
		Type:        "session",
		Description: "Telemetry ingestion session: stream, router, stores",
		Version:     "1.0.0",
	}
}

// Health aggregates the session and stream health.
func (s *Session) Health() component.HealthStatus {
	started := s.started.Load()
	streamHealth := s.manager.Health()

	uptime := time.Duration(0)
	if started && !s.startTime.IsZero() {
		uptime = time.Since(s.startTime)
	}

	return component.HealthStatus{
		Healthy:    started && streamHealth.Healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(s.errorCount.Load()) + streamHealth.ErrorCount,
		LastError:  streamHealth.LastError,
		Uptime:     uptime,
	}
}

// DataFlow returns frame throughput metrics.
func (s *Session) DataFlow() component.FlowMetrics {
	frames := s.framesProcessed.Load()

	var framesPerSecond float64
	if !s.startTime.IsZero() {
		uptime := time.Since(s.startTime).Seconds()
		if uptime > 0 {
			framesPerSecond = float64(frames) / uptime
		}
	}

	lastAct := time.Time{}
	if val := s.lastActivity.Load(); val != nil {
		lastAct = val.(time.Time)
	}

	return component.FlowMetrics{
		MessagesPerSecond: framesPerSecond,
		LastActivity:      lastAct,
	}
}

// StreamHealth exposes the underlying connection manager's health for the
// health endpoint's sub-status report.
func (s *Session) StreamHealth() component.HealthStatus {
	return s.manager.Health()
}
