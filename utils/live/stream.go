package live

import (
	"context"
	"time"
)

// Signal is one tick of a change feed. A non-nil Err means the feed has failed
// and will not tick again.
type Signal struct {
	Err error
}

// Source opens a change feed that must close or stop ticking once ctx is done.
type Source func(ctx context.Context) (<-chan Signal, error)

// Loader produces the full current result set. A positive refreshIn asks the
// stream to reload after that long even if the feed stays quiet.
type Loader[T any] func(ctx context.Context) (value T, refreshIn time.Duration, err error)

// Stream pushes a freshly loaded full result set after every feed tick.
// Updates holds at most one value; a slow reader only ever sees the newest set.
type Stream[T any] struct {
	updates chan T
	errs    chan error
	cancel  context.CancelFunc
	done    chan struct{}
}

// Start opens the feed, loads once and then reloads once per tick until ctx is
// cancelled, Unsubscribe is called or the feed fails. The feed lives exactly as
// long as the stream.
func Start[T any](ctx context.Context, source Source, load Loader[T]) *Stream[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Stream[T]{
		updates: make(chan T, 1),
		errs:    make(chan error, 4),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(ctx, source, load)
	return s
}

func (s *Stream[T]) Updates() <-chan T {
	return s.updates
}

func (s *Stream[T]) Errors() <-chan error {
	return s.errs
}

// Done is closed once the stream has stopped and both channels are closed.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// Unsubscribe stops the stream and waits for its goroutine to exit.
func (s *Stream[T]) Unsubscribe() {
	s.cancel()
	<-s.done
}

func (s *Stream[T]) run(ctx context.Context, source Source, load Loader[T]) {
	defer func() {
		s.cancel()
		close(s.updates)
		close(s.errs)
		close(s.done)
	}()

	feed, err := source(ctx)
	if err != nil {
		s.pushErr(err)
		return
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	reload := func() {
		v, refreshIn, err := load(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.pushErr(err)
			return
		}
		s.push(v)

		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
		if refreshIn > 0 {
			timer = time.NewTimer(refreshIn)
			timerC = timer.C
		}
	}

	reload()
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-feed:
			if !ok {
				return
			}
			if sig.Err != nil {
				s.pushErr(sig.Err)
				return
			}
			if err := drain(feed); err != nil {
				s.pushErr(err)
				return
			}
			reload()
		case <-timerC:
			timer, timerC = nil, nil
			reload()
		}
	}
}

// drain swallows ticks that piled up while loading, one reload covers them all.
func drain(feed <-chan Signal) error {
	for {
		select {
		case sig, ok := <-feed:
			if !ok {
				return nil
			}
			if sig.Err != nil {
				return sig.Err
			}
		default:
			return nil
		}
	}
}

func (s *Stream[T]) push(v T) {
	for {
		select {
		case s.updates <- v:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func (s *Stream[T]) pushErr(err error) {
	for {
		select {
		case s.errs <- err:
			return
		default:
		}
		select {
		case <-s.errs:
		default:
		}
	}
}
