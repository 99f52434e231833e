// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package framesync owns the per-frame synchronization objects that bound
// how far the CPU may run ahead of the GPU.
package framesync

import (
	"github.com/pkg/errors"

	"github.com/devblok/korugraph/gfx"
)

// ErrDepth is returned when a set is created with less than one slot.
var ErrDepth = errors.New("frames in flight must be at least 1")

type slot struct {
	imageAvailable gfx.Handle
	renderFinished gfx.Handle
	inFlight       gfx.Handle
}

// Set holds one slot per frame in flight. Slot i is only reused after
// its fence was observed signaled.
type Set struct {
	dev     gfx.Synchronizer
	slots   []slot
	current int
}

// New creates depth slots. Fences start signaled so the first wait on
// every slot returns at once.
func New(dev gfx.Synchronizer, depth int) (*Set, error) {
	if depth < 1 {
		return nil, ErrDepth
	}
	s := &Set{
		dev:   dev,
		slots: make([]slot, depth),
	}
	for i := range s.slots {
		if err := s.initSlot(&s.slots[i]); err != nil {
			s.Destroy()
			return nil, errors.Wrapf(err, "frame slot %d", i)
		}
	}
	return s, nil
}

func (s *Set) initSlot(sl *slot) error {
	var err error
	if sl.imageAvailable, err = s.dev.CreateSemaphore(); err != nil {
		return errors.Wrap(gfx.ErrAllocation, err.Error())
	}
	if sl.renderFinished, err = s.dev.CreateSemaphore(); err != nil {
		return errors.Wrap(gfx.ErrAllocation, err.Error())
	}
	if sl.inFlight, err = s.dev.CreateFence(true); err != nil {
		return errors.Wrap(gfx.ErrAllocation, err.Error())
	}
	return nil
}

// Depth returns N, the number of frames in flight.
func (s *Set) Depth() int {
	return len(s.slots)
}

// Index returns the current slot, in [0, Depth()).
func (s *Set) Index() int {
	return s.current
}

// Advance moves to the next slot.
func (s *Set) Advance() {
	s.current = (s.current + 1) % len(s.slots)
}

// WaitCurrentFence blocks until the current slot's previous submission
// has completed.
func (s *Set) WaitCurrentFence() error {
	return errors.Wrap(s.dev.WaitFence(s.slots[s.current].inFlight), "wait in-flight fence")
}

// ResetCurrentFence unsignals the current fence. Call it only once the
// frame is certain to be submitted.
func (s *Set) ResetCurrentFence() error {
	return errors.Wrap(s.dev.ResetFence(s.slots[s.current].inFlight), "reset in-flight fence")
}

// ImageAvailable is signaled by acquire and waited on by submit.
func (s *Set) ImageAvailable() gfx.Handle {
	return s.slots[s.current].imageAvailable
}

// RenderFinished is signaled by submit and waited on by present.
func (s *Set) RenderFinished() gfx.Handle {
	return s.slots[s.current].renderFinished
}

// InFlightFence is signaled when the current slot's submission completes.
func (s *Set) InFlightFence() gfx.Handle {
	return s.slots[s.current].inFlight
}

// RecreateImageSemaphores replaces every image-available semaphore.
// An acquire whose frame was then skipped leaves its semaphore signaled
// with nothing to wait on it; the device must be idle.
func (s *Set) RecreateImageSemaphores() error {
	for i := range s.slots {
		sl := &s.slots[i]
		s.dev.DestroySemaphore(sl.imageAvailable)
		sl.imageAvailable = gfx.NullHandle

		sem, err := s.dev.CreateSemaphore()
		if err != nil {
			return errors.Wrap(gfx.ErrAllocation, err.Error())
		}
		sl.imageAvailable = sem
	}
	return nil
}

// Destroy destroys every slot. The device must be idle.
func (s *Set) Destroy() {
	for i := range s.slots {
		sl := &s.slots[i]
		if !sl.imageAvailable.IsNull() {
			s.dev.DestroySemaphore(sl.imageAvailable)
		}
		if !sl.renderFinished.IsNull() {
			s.dev.DestroySemaphore(sl.renderFinished)
		}
		if !sl.inFlight.IsNull() {
			s.dev.DestroyFence(sl.inFlight)
		}
		*sl = slot{}
	}
	s.slots = s.slots[:0]
	s.current = 0
}
