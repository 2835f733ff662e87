// Package bus broadcasts one feed to several consumers.
package bus

import (
	"context"
	"sync"
)

type output[T any] struct {
	ch       chan T
	lossless bool
}

// FanOut broadcasts values from a single input channel to N output
// channels. A lossless subscriber applies backpressure to the whole bus; a
// lossy one has values dropped when its buffer is full so that a slow
// consumer cannot stall the pipeline.
type FanOut[T any] struct {
	mu      sync.RWMutex
	outputs []output[T]
	bufSize int

	// OnDrop is called when a value is dropped for a lossy subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut with the given buffer size for output channels.
func New[T any](outputBufferSize int) *FanOut[T] {
	return &FanOut[T]{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new output channel. Subscribe before Run.
func (f *FanOut[T]) Subscribe(lossless bool) <-chan T {
	ch := make(chan T, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, output[T]{ch: ch, lossless: lossless})
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers, closing them when
// it returns. Blocks until ctx is cancelled or input is closed.
func (f *FanOut[T]) Run(ctx context.Context, input <-chan T) {
	defer func() {
		f.mu.RLock()
		for _, o := range f.outputs {
			close(o.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, o := range f.outputs {
				if o.lossless {
					select {
					case o.ch <- v:
					case <-ctx.Done():
						f.mu.RUnlock()
						return
					}
					continue
				}
				select {
				case o.ch <- v:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports a subscriber channel's fill.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns (length, capacity) for each subscriber channel.
func (f *FanOut[T]) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, o := range f.outputs {
		stats[i] = ChannelStat{Len: len(o.ch), Cap: cap(o.ch)}
	}
	return stats
}
