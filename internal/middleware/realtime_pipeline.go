package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"VolCast/internal/domain/models"
	domrepo "VolCast/internal/domain/repository"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline sits between the WebSocket stream and the ingest
// backend. It validates, throttles per symbol, and buffers when the
// downstream is unavailable.
type RealtimePipeline struct {
	proc     Proc
	metrics  domrepo.Metrics
	maxRPS   int
	bufSize  int
	bufCh    chan *models.Tick
	stopCh   chan struct{}
	started  bool
	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
	// optional format transform hook
	transform func(*models.Tick) *models.Tick
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max ticks per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a transformation hook to modify tick format.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   20,   // default throttle per symbol
		bufSize:  1000, // default buffer
		bufCh:    make(chan *models.Tick, 1000),
		stopCh:   make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.Tick, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered ticks.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case t := <-p.bufCh:
				if t == nil {
					continue
				}
				if err := p.proc.Process(ctx, t); err != nil {
					// exponential backoff with cap
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- t:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a tick downstream,
// buffering on errors.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		t = p.transform(t)
		if err := validateTick(t); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(t.Symbol, start) {
		// throttled; record and drop silently
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- t:
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordStageLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || t.Size < 0 {
		return fmt.Errorf("invalid price/size")
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	last := p.lastSeen[symbol]
	if last.IsZero() {
		p.lastSeen[symbol] = now
		return true
	}
	if now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
