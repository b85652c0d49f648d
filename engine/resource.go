// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// AllocatedImage is an image and its view.
// Both are valid until Cleanup is called.
type AllocatedImage struct {
	Image  driver.Image
	View   driver.ImageView
	Format driver.PixelFmt
	Extent driver.Dim3D
}

// AllocateImage creates a 2D image with a single layer,
// level and sample, and a view of it.
func AllocateImage(ctx *Context, pf driver.PixelFmt, extent driver.Dim3D, usg driver.Usage) (*AllocatedImage, error) {
	if extent.Depth == 0 {
		extent.Depth = 1
	}
	img, err := ctx.GPU().NewImage(pf, extent, 1, 1, 1, usg)
	if err != nil {
		return nil, errors.Wrapf(err, "engine: allocating %dx%d image", extent.Width, extent.Height)
	}
	view, err := img.NewView()
	if err != nil {
		img.Destroy()
		return nil, errors.Wrap(err, "engine: creating image view")
	}
	return &AllocatedImage{
		Image:  img,
		View:   view,
		Format: pf,
		Extent: extent,
	}, nil
}

// Cleanup destroys the view and then the image.
// Calling Cleanup more than once has no effect.
func (a *AllocatedImage) Cleanup() {
	if a.View != nil {
		a.View.Destroy()
		a.Image.Destroy()
	}
	*a = AllocatedImage{}
}

// Valid returns whether a has not been cleaned up.
func (a *AllocatedImage) Valid() bool { return a.View != nil }

// AllocatedBuffer is a buffer of fixed size.
type AllocatedBuffer struct {
	Buffer driver.Buffer
	Size   int64
}

// AllocateBuffer creates a buffer of size bytes.
// Failure is fatal to the caller: there is no fallback
// when device memory is exhausted.
func AllocateBuffer(ctx *Context, size int64, visible bool, usg driver.Usage) (*AllocatedBuffer, error) {
	buf, err := ctx.GPU().NewBuffer(size, visible, usg)
	if err != nil {
		return nil, errors.Wrapf(err, "engine: allocating %d-byte buffer", size)
	}
	return &AllocatedBuffer{Buffer: buf, Size: size}, nil
}

// Addr returns the buffer's device address.
func (a *AllocatedBuffer) Addr() uint64 { return a.Buffer.Addr() }

// Cleanup destroys the buffer.
// Calling Cleanup more than once has no effect.
func (a *AllocatedBuffer) Cleanup() {
	if a.Buffer != nil {
		a.Buffer.Destroy()
	}
	*a = AllocatedBuffer{}
}

// transition records a layout transition of img that
// waits on every prior command.
func transition(cb driver.CmdBuffer, img driver.Image, before, after driver.Layout) {
	cb.Transition([]driver.Transition{transitionOf(img, before, after)})
}

func transitionOf(img driver.Image, before, after driver.Layout) driver.Transition {
	return driver.Transition{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SAll,
			SyncAfter:    driver.SAll,
			AccessBefore: driver.AAnyWrite,
			AccessAfter:  driver.AAnyRead | driver.AAnyWrite,
		},
		LayoutBefore: before,
		LayoutAfter:  after,
		Img:          img,
	}
}
