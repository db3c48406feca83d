package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/reugn/go-streams"
	"github.com/reugn/go-streams/extension"
	"github.com/reugn/go-streams/flow"
)

type ExecFunc func(ctx context.Context, op PageOp) PageResult

// Host runs page operations on a pool of workers and hands every result to
// a single aggregator. Once an operation fails, operations that have not
// started are dropped.
type Host struct {
	workers int
}

func NewHost(workers int) *Host {
	if workers < 1 {
		workers = 1
	}
	return &Host{workers: workers}
}

// Run blocks until every dispatched operation has finished or been dropped.
// apply is called from the calling goroutine only; a non-nil error from it
// aborts the remaining operations.
func (h *Host) Run(ctx context.Context, ops []PageOp, exec ExecFunc, apply func(PageResult) error) {
	var aborted atomic.Bool
	opsCh := make(chan any)
	resultsCh := make(chan any)

	workers := newPageWorkers(ctx, h.workers, exec, &aborted)
	extension.NewChanSource(opsCh).
		Via(flow.NewPassThrough()).
		Via(workers).
		To(extension.NewChanSink(resultsCh))

	go func() {
		defer close(opsCh)
		for _, op := range ops {
			if aborted.Load() {
				return
			}
			select {
			case <-ctx.Done():
				return
			case opsCh <- op:
			}
		}
	}()

	for msg := range resultsCh {
		res, ok := msg.(PageResult)
		if !ok {
			slog.Warn("host: invalid result type", "result", msg)
			continue
		}
		if err := apply(res); err != nil {
			aborted.Store(true)
		}
	}
}

// pageWorkers is a streams.Flow that executes PageOps concurrently.
type pageWorkers struct {
	in      chan any
	out     chan any
	workers int
	exec    ExecFunc
	aborted *atomic.Bool
}

func newPageWorkers(ctx context.Context, workers int, exec ExecFunc, aborted *atomic.Bool) *pageWorkers {
	f := &pageWorkers{
		in:      make(chan any),
		out:     make(chan any),
		workers: workers,
		exec:    exec,
		aborted: aborted,
	}
	go f.doStream(ctx)
	return f
}

func (f *pageWorkers) In() chan<- any {
	return f.in
}

func (f *pageWorkers) Out() <-chan any {
	return f.out
}

func (f *pageWorkers) Via(flow streams.Flow) streams.Flow {
	go f.transmit(flow)
	return flow
}

func (f *pageWorkers) To(sink streams.Sink) {
	go f.transmit(sink)
}

func (f *pageWorkers) transmit(inlet streams.Inlet) {
	for element := range f.Out() {
		inlet.In() <- element
	}
	close(inlet.In())
}

func (f *pageWorkers) doStream(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range f.in {
				op, ok := msg.(PageOp)
				if !ok {
					slog.Warn("host: invalid operation type", "operation", msg)
					continue
				}
				// Drain without running once the run is aborted.
				if f.aborted.Load() || ctx.Err() != nil {
					continue
				}
				res := f.exec(ctx, op)
				if res.Err != nil {
					f.aborted.Store(true)
				}
				f.out <- res
			}
		}()
	}
	wg.Wait()
	close(f.out)
}
