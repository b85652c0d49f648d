// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// swapchain implements driver.Swapchain.
type swapchain struct {
	d     *Driver
	sf    driver.Surface
	surf  vk.Surface
	sc    vk.Swapchain
	count int
	imgs  []driver.Image
	fmt   driver.PixelFmt
	vfmt  vk.SurfaceFormat
	size  driver.Dim3D
	mode  vk.PresentMode
}

// NewSwapchain creates a new swapchain.
// The surface is created by sf itself, for the instance
// that d uses.
func (d *Driver) NewSwapchain(sf driver.Surface, imageCount int) (driver.Swapchain, error) {
	if len(d.iexts) == 0 {
		return nil, driver.ErrCannotPresent
	}
	p, err := sf.CreateWindowSurface(d.inst, nil)
	if err != nil {
		return nil, errors.Wrap(driver.ErrWindow, err.Error())
	}
	s := &swapchain{
		d:     d,
		sf:    sf,
		surf:  vk.SurfaceFromPointer(p),
		count: imageCount,
	}
	var support vk.Bool32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, s.surf, &support)); err != nil || support != vk.True {
		vk.DestroySurface(d.inst, s.surf, nil)
		return nil, driver.ErrCannotPresent
	}
	if err := s.chooseFormat(); err != nil {
		vk.DestroySurface(d.inst, s.surf, nil)
		return nil, err
	}
	if err := s.create(vk.Swapchain(vk.NullHandle)); err != nil {
		vk.DestroySurface(d.inst, s.surf, nil)
		return nil, err
	}
	return s, nil
}

// chooseFormat selects the surface format and the
// present mode.
// Blitting into the images requires a format that the
// driver package can describe.
func (s *swapchain) chooseFormat() error {
	var n uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.surf, &n, nil)); err != nil {
		return err
	}
	fmts := make([]vk.SurfaceFormat, n)
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.surf, &n, fmts)); err != nil {
		return err
	}
	s.fmt = driver.FInvalid
	for i := range fmts[:n] {
		fmts[i].Deref()
		pf := pixelFmtOf(fmts[i].Format)
		if pf == driver.FInvalid || pf.IsDepth() {
			continue
		}
		// Prefer sRGB formats.
		if s.fmt == driver.FInvalid || pf == driver.BGRA8sRGB || pf == driver.RGBA8sRGB {
			s.fmt = pf
			s.vfmt = fmts[i]
		}
	}
	if s.fmt == driver.FInvalid {
		return errors.Wrap(driver.ErrCannotPresent, "vk: no usable surface format")
	}

	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.surf, &n, nil)); err != nil {
		return err
	}
	modes := make([]vk.PresentMode, n)
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(s.d.pdev, s.surf, &n, modes)); err != nil {
		return err
	}
	// FIFO is always supported; the frame driver does its
	// own rate limiting, so mailbox is preferred.
	s.mode = vk.PresentModeFifo
	for _, m := range modes[:n] {
		if m == vk.PresentModeMailbox {
			s.mode = m
			break
		}
	}
	return nil
}

// create creates the swapchain images.
// old, if not null, is retired.
func (s *swapchain) create(old vk.Swapchain) error {
	var capab vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(s.d.pdev, s.surf, &capab)); err != nil {
		return err
	}
	capab.Deref()
	capab.CurrentExtent.Deref()
	capab.MinImageExtent.Deref()
	capab.MaxImageExtent.Deref()

	ext := capab.CurrentExtent
	if ext.Width == vk.MaxUint32 {
		w, h := s.sf.GetFramebufferSize()
		ext.Width = min(max(uint32(w), capab.MinImageExtent.Width), capab.MaxImageExtent.Width)
		ext.Height = min(max(uint32(h), capab.MinImageExtent.Height), capab.MaxImageExtent.Height)
	}
	if ext.Width == 0 || ext.Height == 0 {
		return driver.ErrSwapchain
	}
	count := max(uint32(s.count), capab.MinImageCount)
	if capab.MaxImageCount > 0 {
		count = min(count, capab.MaxImageCount)
	}
	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surf,
		MinImageCount:    count,
		ImageFormat:      s.vfmt.Format,
		ImageColorSpace:  s.vfmt.ColorSpace,
		ImageExtent:      ext,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit |
			vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capab.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      s.mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var sc vk.Swapchain
	err := checkResult(vk.CreateSwapchain(s.d.dev, &info, nil, &sc))
	if old != vk.Swapchain(vk.NullHandle) {
		vk.DestroySwapchain(s.d.dev, old, nil)
	}
	if err != nil {
		s.sc = vk.Swapchain(vk.NullHandle)
		s.imgs = nil
		return err
	}
	s.sc = sc

	var n uint32
	if err := checkResult(vk.GetSwapchainImages(s.d.dev, sc, &n, nil)); err != nil {
		return err
	}
	imgs := make([]vk.Image, n)
	if err := checkResult(vk.GetSwapchainImages(s.d.dev, sc, &n, imgs)); err != nil {
		return err
	}
	s.size = driver.Dim3D{Width: int(ext.Width), Height: int(ext.Height), Depth: 1}
	s.imgs = make([]driver.Image, n)
	for i := range s.imgs {
		s.imgs[i] = &image{
			d:    s.d,
			img:  imgs[i],
			fmt:  s.fmt,
			size: s.size,
			sc:   true,
		}
	}
	return nil
}

// Images returns the swapchain images.
func (s *swapchain) Images() []driver.Image { return s.imgs }

// Next returns the index of the next writable image.
func (s *swapchain) Next(sem driver.Semaphore, timeout time.Duration) (int, error) {
	if s.sc == vk.Swapchain(vk.NullHandle) {
		return -1, driver.ErrSwapchain
	}
	var idx uint32
	res := vk.AcquireNextImage(s.d.dev, s.sc, uint64(max(timeout, 0)), sem.(*semaphore).sem, vk.Fence(vk.NullHandle), &idx)
	switch res {
	case vk.Success:
		return int(idx), nil
	case vk.Suboptimal:
		// The image was acquired and its semaphore will
		// be signaled, so the frame must go on. The next
		// presentation reports the condition.
		return int(idx), nil
	}
	return -1, checkResult(res)
}

// Present presents the image identified by index.
func (s *swapchain) Present(index int, wait driver.Semaphore) error {
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait.(*semaphore).sem},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	s.d.qmu.Lock()
	res := vk.QueuePresent(s.d.que, &info)
	s.d.qmu.Unlock()
	if res == vk.Suboptimal {
		return driver.ErrSwapchain
	}
	return checkResult(res)
}

// Recreate recreates the swapchain.
func (s *swapchain) Recreate() error {
	for _, img := range s.imgs {
		img.Destroy()
	}
	s.imgs = nil
	return s.create(s.sc)
}

// Format returns the images' pixel format.
func (s *swapchain) Format() driver.PixelFmt { return s.fmt }

// Size returns the images' extent.
func (s *swapchain) Size() driver.Dim3D { return s.size }

// Destroy destroys the swapchain and its surface.
func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	if s.d != nil {
		for _, img := range s.imgs {
			img.Destroy()
		}
		if s.sc != vk.Swapchain(vk.NullHandle) {
			vk.DestroySwapchain(s.d.dev, s.sc, nil)
		}
		vk.DestroySurface(s.d.inst, s.surf, nil)
	}
	*s = swapchain{}
}
