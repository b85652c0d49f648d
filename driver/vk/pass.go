// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// attachKey identifies an attachment description.
type attachKey struct {
	format vk.Format
	load   vk.AttachmentLoadOp
	store  vk.AttachmentStoreOp
	layout vk.ImageLayout
}

// passKey identifies a render pass.
// Two passes with the same key are interchangeable.
type passKey struct {
	color  [driver.MaxColorTargets]attachKey
	ncolor int
	ds     attachKey
	hasDS  bool
}

// fbKey identifies a framebuffer.
type fbKey struct {
	pass  vk.RenderPass
	views [driver.MaxColorTargets + 1]vk.ImageView
	nview int
	w, h  int
}

// passCache creates render passes and framebuffers on
// demand. Entries live until the GPU is closed, except
// for framebuffers, which are evicted along with the
// views they refer to.
type passCache struct {
	d      *Driver
	mu     sync.Mutex
	passes map[passKey]vk.RenderPass
	fbs    map[fbKey]vk.Framebuffer
}

func (c *passCache) init(d *Driver) {
	c.d = d
	c.passes = make(map[passKey]vk.RenderPass)
	c.fbs = make(map[fbKey]vk.Framebuffer)
}

// keyOf computes the passKey of a given pass.
func keyOf(pass *driver.PassDesc) (k passKey) {
	if len(pass.Color) > driver.MaxColorTargets {
		panic("too many color targets")
	}
	for i, ct := range pass.Color {
		k.color[i] = attachKey{
			format: convPixelFmt(ct.View.Image().Format()),
			load:   convLoadOp(ct.Load),
			store:  convStoreOp(ct.Store),
			layout: vk.ImageLayoutColorAttachmentOptimal,
		}
	}
	k.ncolor = len(pass.Color)
	if ds := pass.DS; ds != nil {
		k.ds = attachKey{
			format: convPixelFmt(ds.View.Image().Format()),
			load:   convLoadOp(ds.Load),
			store:  convStoreOp(ds.Store),
			layout: vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		if ds.ReadOnly {
			k.ds.layout = vk.ImageLayoutDepthStencilReadOnlyOptimal
		}
		k.hasDS = true
	}
	return
}

// newRenderPass creates a render pass with a single
// subpass. Images are expected to be in their attachment
// layouts already, so no transitions happen in the pass
// and synchronization is left to explicit barriers.
func (c *passCache) newRenderPass(k *passKey) (vk.RenderPass, error) {
	descs := make([]vk.AttachmentDescription, 0, k.ncolor+1)
	refs := make([]vk.AttachmentReference, k.ncolor)
	for i := range k.ncolor {
		a := &k.color[i]
		descs = append(descs, vk.AttachmentDescription{
			Format:         a.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         a.load,
			StoreOp:        a.store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  a.layout,
			FinalLayout:    a.layout,
		})
		refs[i] = vk.AttachmentReference{Attachment: uint32(i), Layout: a.layout}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(k.ncolor),
		PColorAttachments:    refs,
	}
	if k.hasDS {
		descs = append(descs, vk.AttachmentDescription{
			Format:         k.ds.format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         k.ds.load,
			StoreOp:        k.ds.store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  k.ds.layout,
			FinalLayout:    k.ds.layout,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(k.ncolor),
			Layout:     k.ds.layout,
		}
	}
	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var rp vk.RenderPass
	if err := checkResult(vk.CreateRenderPass(c.d.dev, &info, nil, &rp)); err != nil {
		return vk.RenderPass(vk.NullHandle), err
	}
	return rp, nil
}

// get returns the render pass and framebuffer to use for
// the given pass, creating them if needed.
func (c *passCache) get(pass *driver.PassDesc) (vk.RenderPass, vk.Framebuffer, error) {
	k := keyOf(pass)
	c.mu.Lock()
	defer c.mu.Unlock()
	rp, ok := c.passes[k]
	if !ok {
		var err error
		if rp, err = c.newRenderPass(&k); err != nil {
			return vk.RenderPass(vk.NullHandle), vk.Framebuffer(vk.NullHandle), err
		}
		c.passes[k] = rp
	}
	fk := fbKey{pass: rp, w: pass.Width, h: pass.Height}
	for _, ct := range pass.Color {
		fk.views[fk.nview] = ct.View.(*imageView).view
		fk.nview++
	}
	if pass.DS != nil {
		fk.views[fk.nview] = pass.DS.View.(*imageView).view
		fk.nview++
	}
	fb, ok := c.fbs[fk]
	if !ok {
		info := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      rp,
			AttachmentCount: uint32(fk.nview),
			PAttachments:    fk.views[:fk.nview],
			Width:           uint32(pass.Width),
			Height:          uint32(pass.Height),
			Layers:          1,
		}
		if err := checkResult(vk.CreateFramebuffer(c.d.dev, &info, nil, &fb)); err != nil {
			return vk.RenderPass(vk.NullHandle), vk.Framebuffer(vk.NullHandle), err
		}
		c.fbs[fk] = fb
	}
	return rp, fb, nil
}

// evict destroys every framebuffer that refers to view.
func (c *passCache) evict(view vk.ImageView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, fb := range c.fbs {
		for _, v := range k.views[:k.nview] {
			if v == view {
				vk.DestroyFramebuffer(c.d.dev, fb, nil)
				delete(c.fbs, k)
				break
			}
		}
	}
}

// destroy destroys every cached object.
func (c *passCache) destroy() {
	if c.d == nil {
		return
	}
	for _, fb := range c.fbs {
		vk.DestroyFramebuffer(c.d.dev, fb, nil)
	}
	for _, rp := range c.passes {
		vk.DestroyRenderPass(c.d.dev, rp, nil)
	}
	*c = passCache{}
}
