// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"
	"time"
	"unsafe"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrWindow represents an error related to a specific window.
// This error usually indicates that a window misconfiguration
// is preventing correct operation.
var ErrWindow = errors.New("driver: window-related error")

// ErrSwapchain means that the swapchain is out of date.
// Changes to the window or compositor made the swapchain
// unusable, and it must be recreated before the next
// presentation. It is an expected condition, not a
// failure.
var ErrSwapchain = errors.New("driver: swapchain out of date")

// Surface is the interface that a window implements to
// allow presentation on it.
// Its method set matches the one of glfw.Window.
type Surface interface {
	// CreateWindowSurface creates a platform surface for
	// the given API instance and returns its handle.
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)

	// GetFramebufferSize returns the size, in pixels, of
	// the window's framebuffer.
	GetFramebufferSize() (width, height int)
}

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain.
	// Only one swapchain can be associated with a specific
	// Surface at a time.
	NewSwapchain(sf Surface, imageCount int) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image to target, transitions the image to a valid
// layout (e.g., from LUndefined to LCopyDst), records
// commands as needed, transitions the image to the
// LPresent layout, submits these commands signaling a
// semaphore and then calls Present waiting on it.
type Swapchain interface {
	Destroyer

	// Images returns the list of images that comprises
	// the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called.
	Images() []Image

	// Next returns the index of the next writable image.
	// sem is signaled when the image is ready to be
	// written. It returns ErrSwapchain if the swapchain
	// is out of date and ErrTimeout if no image became
	// available in time.
	Next(sem Semaphore, timeout time.Duration) (int, error)

	// Present presents the image identified by index
	// once wait is signaled.
	// It returns ErrSwapchain if the swapchain is out
	// of date.
	Present(index int, wait Semaphore) error

	// Recreate recreates the swapchain using the
	// current size of the surface.
	// The caller must ensure that the GPU is idle.
	Recreate() error

	// Format returns the images' PixelFmt.
	Format() PixelFmt

	// Size returns the images' extent.
	Size() Dim3D
}
