// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// image implements driver.Image.
type image struct {
	d    *Driver
	m    *memory
	img  vk.Image
	fmt  driver.PixelFmt
	size driver.Dim3D

	// Swapchain images are owned by the swapchain
	// and must not be destroyed here.
	sc bool
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	if size.Width < 1 || size.Height < 1 || size.Depth < 1 || layers < 1 || levels < 1 || samples < 1 {
		panic("invalid image parameters")
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    convPixelFmt(pf),
		Extent: vk.Extent3D{
			Width:  uint32(size.Width),
			Height: uint32(size.Height),
			Depth:  uint32(size.Depth),
		},
		MipLevels:     uint32(levels),
		ArrayLayers:   uint32(layers),
		Samples:       vk.SampleCountFlagBits(samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         convImageUsage(usg, pf),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if size.Depth > 1 {
		info.ImageType = vk.ImageType3d
	}
	var img vk.Image
	if err := checkResult(vk.CreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.dev, img, &req)
	req.Deref()
	m, err := d.newMemory(&req, false, false)
	if err != nil {
		vk.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	im := &image{d: d, m: m, img: img, fmt: pf, size: size}
	if err := checkResult(vk.BindImageMemory(d.dev, img, m.mem, 0)); err != nil {
		im.Destroy()
		return nil, err
	}
	return im, nil
}

// NewView creates a new 2D view of the first layer and
// level of the image.
func (im *image) NewView() (driver.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    im.img,
		ViewType: vk.ImageViewType2d,
		Format:   convPixelFmt(im.fmt),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectOf(im.fmt),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := checkResult(vk.CreateImageView(im.d.dev, &info, nil, &view)); err != nil {
		return nil, err
	}
	return &imageView{im: im, view: view}, nil
}

// Format returns the pixel format.
func (im *image) Format() driver.PixelFmt { return im.fmt }

// Size returns the image extent.
func (im *image) Size() driver.Dim3D { return im.size }

// subresource returns the range that covers every layer
// and level of the image.
func (im *image) subresource() vk.ImageSubresourceRange {
	return vk.ImageSubresourceRange{
		AspectMask:     aspectOf(im.fmt),
		LevelCount:     vk.RemainingMipLevels,
		LayerCount:     vk.RemainingArrayLayers,
		BaseMipLevel:   0,
		BaseArrayLayer: 0,
	}
}

// Destroy destroys the image.
func (im *image) Destroy() {
	if im == nil {
		return
	}
	if im.d != nil && !im.sc {
		vk.DestroyImage(im.d.dev, im.img, nil)
		im.m.free()
	}
	*im = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	im   *image
	view vk.ImageView
}

// Image returns the image that the view refers to.
func (v *imageView) Image() driver.Image { return v.im }

// Destroy destroys the image view.
// Framebuffers that use the view are destroyed as well.
func (v *imageView) Destroy() {
	if v == nil {
		return
	}
	if v.im != nil && v.im.d != nil {
		d := v.im.d
		d.passes.evict(v.view)
		vk.DestroyImageView(d.dev, v.view, nil)
	}
	*v = imageView{}
}
