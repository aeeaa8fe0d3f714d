package query

import (
	"context"
	"time"
)

// Emit receives one streamed snapshot. Returning an error ends the stream.
type Emit func(*Snapshot) error

// StreamCurrent emits a current snapshot immediately and then every
// interval until ctx ends.
func (e *Engine) StreamCurrent(ctx context.Context, req CurrentRequest, emit Emit) error {
	req.At = nil
	ticker := time.NewTicker(max(req.Interval, e.cfg.MinInterval))
	defer ticker.Stop()

	for {
		snap, err := e.Current(req)
		if err != nil {
			return err
		}
		if err := emit(snap); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// StreamSample emits sample snapshots, each continuing where the previous
// one ended. Empty snapshots are only emitted as heartbeats. The stream
// fails with OUT_OF_RANGE once the reader falls behind the retained window.
func (e *Engine) StreamSample(ctx context.Context, req SampleRequest, emit Emit) error {
	devices, items, err := e.resolve(req.Device, req.Path)
	if err != nil {
		return err
	}
	heartbeat := req.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(max(req.Interval, e.cfg.MinInterval))
	defer ticker.Stop()

	from := req.From
	first := true
	lastEmit := time.Now()
	for {
		snap, err := e.sample(devices, items, from, req.count(), true)
		if err != nil {
			return err
		}
		next := snap.Header.NextSequence
		from = &next

		if first || snap.Len() > 0 || time.Since(lastEmit) >= heartbeat {
			if err := emit(snap); err != nil {
				return err
			}
			lastEmit = time.Now()
		}
		first = false

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
