// Package lifecycle exposes sync activity as a lifecycle event source.
package lifecycle

import (
	"context"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/notesync/pkg/syncer"
)

type syncSource struct {
	events <-chan syncer.Event
	out    chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits sync activity read from
// events. The output closes when events closes or the context passed to
// Start is done.
func NewSource(events <-chan syncer.Event) lifecycle.Source {
	return &syncSource{
		events: events,
		out:    make(chan lifecycle.Event),
	}
}

func (s *syncSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *syncSource) Start(ctx context.Context) error {
	lifecycle.Go(ctx, func(ctx context.Context) error {
		defer close(s.out)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-s.events:
				if !ok {
					return nil
				}
				select {
				case s.out <- e:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
	return nil
}
