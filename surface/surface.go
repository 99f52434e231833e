// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package surface manages the swapchain of the window surface: the
// presentable images, their views, and rebuilding them when the window
// changes.
package surface

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/devblok/korugraph/gfx"
)

// package errors
var (
	ErrDegenerateExtent  = errors.New("surface extent too small to render into")
	ErrIllegalTransition = errors.New("illegal surface state transition")
	ErrNoSurfaceFormat   = errors.New("surface reports no formats")
)

// MinExtent is the smallest width and height a swapchain is built with.
// Smaller windows, minimised ones included, defer the build.
const MinExtent = 5

// State is the lifecycle state of the swapchain.
type State int

// States
const (
	Uninitialised State = iota
	Ready
	Invalidated
	Rebuilding
	Destroyed
)

func (s State) String() string {
	return [...]string{"uninitialised", "ready", "invalidated", "rebuilding", "destroyed"}[s]
}

// Device is what the manager needs of a gfx.Device.
type Device interface {
	gfx.Presenter
	gfx.Allocator
}

// Manager owns the swapchain, its images and their views.
type Manager struct {
	dev Device
	log log.FieldLogger

	state       State
	swapchain   gfx.Handle
	format      gfx.SurfaceFormat
	presentMode gfx.PresentMode
	extent      gfx.Extent2D
	images      []gfx.Handle
	views       []gfx.ImageView
}

// New creates a manager in the Uninitialised state.
func New(dev Device, logger log.FieldLogger) *Manager {
	return &Manager{
		dev: dev,
		log: logger,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	return m.state
}

// Swapchain returns the swapchain handle.
func (m *Manager) Swapchain() gfx.Handle {
	return m.swapchain
}

// Format returns the chosen surface format.
func (m *Manager) Format() gfx.SurfaceFormat {
	return m.format
}

// PresentMode returns the chosen present mode.
func (m *Manager) PresentMode() gfx.PresentMode {
	return m.presentMode
}

// Extent returns the extent of the presentable images.
func (m *Manager) Extent() gfx.Extent2D {
	return m.extent
}

// ImageCount returns M, the number of presentable images.
func (m *Manager) ImageCount() int {
	return len(m.images)
}

// Images returns the presentable images.
func (m *Manager) Images() []gfx.Handle {
	return m.images
}

// Views returns one view per presentable image.
func (m *Manager) Views() []gfx.Handle {
	views := make([]gfx.Handle, len(m.views))
	for i := range m.views {
		views[i] = m.views[i].Get()
	}
	return views
}

func (m *Manager) transition(to State) error {
	legal := false
	switch to {
	case Ready:
		legal = m.state == Rebuilding
	case Invalidated:
		legal = m.state == Ready || m.state == Invalidated || m.state == Rebuilding
	case Rebuilding:
		legal = m.state == Uninitialised || m.state == Invalidated
	case Destroyed:
		legal = true
	}
	if !legal {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

// Invalidate marks the swapchain as no longer matching the surface.
func (m *Manager) Invalidate() error {
	if m.state == Invalidated {
		return nil
	}
	return m.transition(Invalidated)
}

// Build creates the swapchain for the requested extent, or rebuilds it
// after Invalidate. The previous swapchain is handed to the platform as
// the old one and destroyed afterwards; the device must be idle.
// A degenerate extent leaves the manager untouched and returns
// ErrDegenerateExtent.
func (m *Manager) Build(requested gfx.Extent2D) error {
	if m.state != Uninitialised && m.state != Invalidated {
		return errors.Wrapf(ErrIllegalTransition, "build from %s", m.state)
	}

	caps, err := m.dev.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "surface capabilities")
	}
	extent := ChooseExtent(caps, requested)
	if Degenerate(extent) {
		return errors.Wrapf(ErrDegenerateExtent, "%s", extent)
	}
	formats, err := m.dev.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "surface formats")
	}
	format, err := ChooseFormat(formats)
	if err != nil {
		return err
	}
	modes, err := m.dev.PresentModes()
	if err != nil {
		return errors.Wrap(err, "present modes")
	}

	previous := m.state
	if err := m.transition(Rebuilding); err != nil {
		return err
	}
	if err := m.build(caps, extent, format, ChoosePresentMode(modes)); err != nil {
		m.state = previous
		if previous == Uninitialised {
			m.state = Invalidated
		}
		return err
	}
	m.log.WithFields(log.Fields{
		"extent": m.extent.String(),
		"images": len(m.images),
		"format": m.format.Format,
		"mode":   m.presentMode,
	}).Debug("swapchain built")
	return m.transition(Ready)
}

func (m *Manager) build(caps gfx.SurfaceCapabilities, extent gfx.Extent2D, format gfx.SurfaceFormat, mode gfx.PresentMode) error {
	m.destroyViews()

	old := m.swapchain
	swapchain, err := m.dev.CreateSwapchain(gfx.SwapchainInfo{
		ImageCount:  ChooseImageCount(caps),
		Format:      format,
		Extent:      extent,
		PresentMode: mode,
		Old:         old,
	})
	if !old.IsNull() {
		m.dev.DestroySwapchain(old)
		m.swapchain = gfx.NullHandle
		m.images = nil
	}
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	m.swapchain = swapchain

	images, err := m.dev.SwapchainImages(swapchain)
	if err != nil {
		return errors.Wrap(err, "swapchain images")
	}
	views := make([]gfx.ImageView, len(images))
	for i, image := range images {
		if err := views[i].Init(m.dev, image, format.Format, gfx.AspectColor); err != nil {
			for j := 0; j < i; j++ {
				views[j].Destroy()
			}
			return errors.Wrapf(err, "swapchain view %d", i)
		}
	}

	m.images = images
	m.views = views
	m.format = format
	m.presentMode = mode
	m.extent = extent
	return nil
}

// Acquire acquires the next presentable image, arranging for signal to
// be signaled when it may be written. OutOfDate invalidates the manager.
func (m *Manager) Acquire(signal gfx.Handle) (uint32, gfx.Result) {
	if m.state != Ready {
		return 0, gfx.OutOfDate
	}
	index, result := m.dev.AcquireNextImage(m.swapchain, signal)
	if result == gfx.OutOfDate {
		m.Invalidate()
	}
	return index, result
}

// Present queues image index for presentation once wait is signaled.
// OutOfDate and Suboptimal invalidate the manager.
func (m *Manager) Present(index uint32, wait gfx.Handle) gfx.Result {
	result := m.dev.Present(gfx.PresentInfo{
		Swapchain:  m.swapchain,
		ImageIndex: index,
		Wait:       wait,
	})
	if result == gfx.OutOfDate || result == gfx.Suboptimal {
		m.Invalidate()
	}
	return result
}

func (m *Manager) destroyViews() {
	for i := range m.views {
		m.views[i].Destroy()
	}
	m.views = nil
}

// Destroy destroys the views and the swapchain. The device must be idle.
func (m *Manager) Destroy() {
	if m.state == Destroyed {
		return
	}
	m.destroyViews()
	if !m.swapchain.IsNull() {
		m.dev.DestroySwapchain(m.swapchain)
		m.swapchain = gfx.NullHandle
	}
	m.images = nil
	m.transition(Destroyed)
}

// Degenerate reports whether extent is too small to build a swapchain.
func Degenerate(extent gfx.Extent2D) bool {
	return extent.Width < MinExtent || extent.Height < MinExtent
}

// ChooseExtent returns the platform's current extent when it defines
// one, the requested extent clamped to the supported range otherwise.
func ChooseExtent(caps gfx.SurfaceCapabilities, requested gfx.Extent2D) gfx.Extent2D {
	if caps.CurrentExtent.Width != gfx.UndefinedExtent {
		return caps.CurrentExtent
	}
	return requested.Clamp(caps.MinExtent, caps.MaxExtent)
}

var preferredFormats = []gfx.Format{
	gfx.FormatB8g8r8a8Srgb,
	gfx.FormatR8g8b8a8Srgb,
	gfx.FormatB8g8r8a8Unorm,
	gfx.FormatR8g8b8a8Unorm,
}

// ChooseFormat picks the first preferred sRGB-nonlinear format the
// surface supports, falling back to the first one reported.
func ChooseFormat(formats []gfx.SurfaceFormat) (gfx.SurfaceFormat, error) {
	if len(formats) == 0 {
		return gfx.SurfaceFormat{}, ErrNoSurfaceFormat
	}
	if len(formats) == 1 && formats[0].Format == gfx.FormatUndefined {
		return gfx.SurfaceFormat{Format: preferredFormats[0], ColorSpace: gfx.ColorSpaceSrgbNonlinear}, nil
	}
	for _, want := range preferredFormats {
		for _, f := range formats {
			if f.Format == want && f.ColorSpace == gfx.ColorSpaceSrgbNonlinear {
				return f, nil
			}
		}
	}
	return formats[0], nil
}

// ChoosePresentMode prefers mailbox, FIFO being always available.
func ChoosePresentMode(modes []gfx.PresentMode) gfx.PresentMode {
	for _, mode := range modes {
		if mode == gfx.PresentMailbox {
			return mode
		}
	}
	return gfx.PresentFifo
}

// ChooseImageCount asks for one image more than the minimum, within
// the maximum when the platform sets one.
func ChooseImageCount(caps gfx.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
