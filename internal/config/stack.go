package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/joshuapare/blockalloc/alloc"
	"github.com/joshuapare/blockalloc/alloc/block"
	"github.com/joshuapare/blockalloc/internal/mmarena"
)

// Stack is an assembled allocator:
//
//	tracking -> [synchronized ->] [fallback(primary, secondary) | primary]
//
// Allocator is the outermost layer. The tracker sits in front of the lock so
// that child trackers created from it allocate through the lock too.
type Stack struct {
	Allocator alloc.Allocator
	Tracker   *alloc.TrackingAllocator
	Primary   *block.Allocator
	Secondary *block.Allocator

	closers []func() error
}

// Build allocates arenas and assembles the stack described by c.
func (c *Config) Build(logger *slog.Logger) (*Stack, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Stack{}

	primary, err := s.arena(c.Arena, logger.With(slog.String("arena", "primary")))
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	s.Primary = primary
	var base alloc.Allocator = primary

	if c.Fallback != nil {
		secondary, err := s.arena(*c.Fallback, logger.With(slog.String("arena", "secondary")))
		if err != nil {
			return nil, errors.Join(err, s.Close())
		}
		s.Secondary = secondary
		base = alloc.NewFallback(primary, secondary)
	}

	if c.Synchronized {
		var lock sync.Locker
		if strings.EqualFold(c.Lock, LockSpin) {
			lock = &alloc.SpinLock{}
		}
		base = alloc.NewSynchronized(base, lock)
	}

	set, _ := alloc.ParseMetricSet(c.Tracking.Metrics)
	name := c.Tracking.Name
	if name == "" {
		name = "arena"
	}
	s.Tracker = alloc.NewTracking(name, base, set)
	s.Allocator = s.Tracker

	logger.Debug("allocator stack built",
		slog.Bool("fallback", c.Fallback != nil),
		slog.Bool("synchronized", c.Synchronized),
		slog.String("metrics", set.String()),
	)
	return s, nil
}

func (s *Stack) arena(a Arena, logger *slog.Logger) (*block.Allocator, error) {
	src, _ := mmarena.ParseSource(a.Source)
	mem, cleanup, err := mmarena.New(src, int(a.Size))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, cleanup)
	policy, _ := block.ParsePolicy(a.Policy, uintptr(a.Threshold))
	b, err := block.New(mem, policy, block.WithPoison(a.Poison), block.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("config: arena of %s: %w", a.Size, err)
	}
	return b, nil
}

// Arenas returns the block allocators in the stack, primary first.
func (s *Stack) Arenas() []*block.Allocator {
	out := []*block.Allocator{s.Primary}
	if s.Secondary != nil {
		out = append(out, s.Secondary)
	}
	return out
}

// Validate checks the block list of every arena.
func (s *Stack) Validate() error {
	var errs []error
	for i, a := range s.Arenas() {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("arena %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close releases the arenas' backing memory. The stack must not be used
// afterwards.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
