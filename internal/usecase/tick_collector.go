package usecase

import (
	"context"

	"VolCast/internal/domain/models"
	drepo "VolCast/internal/domain/repository"
	mid "VolCast/internal/middleware"
)

// TickCollector drains the live market stream and hands ticks to the
// processor, optionally through the realtime pipeline.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    *TickProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.MarketStream, proc *TickProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline) *TickCollector {
	return &TickCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	tkCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tkCh, errCh)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, tkCh <-chan *models.Tick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			// A read error closes both channels, so fresh ones must
			// come from a new Read after reconnecting.
			if err != nil {
				c.metrics.RecordError("stream")
			}
			if err != nil || !ok {
				tkCh, errCh = c.reconnect(ctx)
				if tkCh == nil {
					return
				}
			}
		case t, ok := <-tkCh:
			if !ok {
				tkCh, errCh = c.reconnect(ctx)
				if tkCh == nil {
					return
				}
				continue
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Price)
		}
	}
}

// reconnect retries the stream until it comes back or ctx ends,
// returning fresh read channels. Nil channels mean the context is done.
func (c *TickCollector) reconnect(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	for {
		if ctx.Err() != nil {
			return nil, nil
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("stream")
			continue
		}
		return c.stream.Read(ctx)
	}
}

func (c *TickCollector) Stop() error { return c.stream.Close() }

// Processor returns the underlying TickProcessor for lifecycle management.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Shutdown stops the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
