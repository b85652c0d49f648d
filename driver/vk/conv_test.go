// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"testing"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

func TestPixelFmt(t *testing.T) {
	if x := convPixelFmt(driver.FInvalid); x != vk.FormatUndefined {
		t.Fatalf("convPixelFmt(FInvalid):\nhave %v\nwant %v", x, vk.FormatUndefined)
	}
	for pf := driver.RGBA8un; pf <= driver.D32f; pf++ {
		x := convPixelFmt(pf)
		if x == vk.FormatUndefined {
			t.Fatalf("convPixelFmt(%v): undefined format", pf)
		}
		if y := pixelFmtOf(x); y != pf {
			t.Fatalf("pixelFmtOf(%v):\nhave %v\nwant %v", x, y, pf)
		}
		wantAspect := vk.ImageAspectFlags(vk.ImageAspectColorBit)
		if pf.IsDepth() {
			wantAspect = vk.ImageAspectFlags(vk.ImageAspectDepthBit)
		}
		if a := aspectOf(pf); a != wantAspect {
			t.Fatalf("aspectOf(%v):\nhave %v\nwant %v", pf, a, wantAspect)
		}
	}
	if x := pixelFmtOf(vk.FormatR8Unorm); x != driver.FInvalid {
		t.Fatalf("pixelFmtOf(R8Unorm):\nhave %v\nwant FInvalid", x)
	}
}

func TestSync(t *testing.T) {
	for _, x := range [...]struct {
		s      driver.Sync
		before bool
		want   vk.PipelineStageFlagBits
	}{
		{driver.SNone, true, vk.PipelineStageTopOfPipeBit},
		{driver.SNone, false, vk.PipelineStageBottomOfPipeBit},
		{driver.SAll, false, vk.PipelineStageAllCommandsBit},
		{driver.SAll | driver.SCopy, true, vk.PipelineStageAllCommandsBit},
		{driver.SCopy, true, vk.PipelineStageTransferBit},
		{driver.SComputeShading, false, vk.PipelineStageComputeShaderBit},
		{driver.SColorOutput, true, vk.PipelineStageColorAttachmentOutputBit},
		{driver.SDSOutput, false, vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit},
		{driver.SVertexShading | driver.SFragmentShading, true, vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit},
	} {
		if have := convSync(x.s, x.before); have != vk.PipelineStageFlags(x.want) {
			t.Fatalf("convSync(%v, %t):\nhave %v\nwant %v", x.s, x.before, have, x.want)
		}
	}
}

func TestAccess(t *testing.T) {
	if a := convAccess(driver.ANone); a != 0 {
		t.Fatalf("convAccess(ANone):\nhave %v\nwant 0", a)
	}
	for _, x := range [...]struct {
		a    driver.Access
		want vk.AccessFlagBits
	}{
		{driver.ACopyWrite, vk.AccessTransferWriteBit},
		{driver.ACopyRead | driver.ACopyWrite, vk.AccessTransferReadBit | vk.AccessTransferWriteBit},
		{driver.AColorWrite, vk.AccessColorAttachmentWriteBit},
		{driver.ADSRead | driver.ADSWrite, vk.AccessDepthStencilAttachmentReadBit | vk.AccessDepthStencilAttachmentWriteBit},
		{driver.AShaderWrite, vk.AccessShaderWriteBit},
		{driver.AShaderRead, vk.AccessShaderReadBit | vk.AccessUniformReadBit},
		{driver.AIndexBufRead, vk.AccessIndexReadBit},
	} {
		if have := convAccess(x.a); have != vk.AccessFlags(x.want) {
			t.Fatalf("convAccess(%v):\nhave %v\nwant %v", x.a, have, x.want)
		}
	}
}

func TestLayout(t *testing.T) {
	for _, x := range [...]struct {
		l    driver.Layout
		want vk.ImageLayout
	}{
		{driver.LUndefined, vk.ImageLayoutUndefined},
		{driver.LCommon, vk.ImageLayoutGeneral},
		{driver.LColorTarget, vk.ImageLayoutColorAttachmentOptimal},
		{driver.LDSTarget, vk.ImageLayoutDepthStencilAttachmentOptimal},
		{driver.LDSRead, vk.ImageLayoutDepthStencilReadOnlyOptimal},
		{driver.LCopySrc, vk.ImageLayoutTransferSrcOptimal},
		{driver.LCopyDst, vk.ImageLayoutTransferDstOptimal},
		{driver.LShaderRead, vk.ImageLayoutShaderReadOnlyOptimal},
		{driver.LPresent, vk.ImageLayoutPresentSrc},
	} {
		if have := convLayout(x.l); have != x.want {
			t.Fatalf("convLayout(%v):\nhave %v\nwant %v", x.l, have, x.want)
		}
	}
}

func TestUsage(t *testing.T) {
	bu := convBufferUsage(driver.UShaderRead | driver.UAddress | driver.UCopyDst)
	want := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit | vk.BufferUsageShaderDeviceAddressBit | vk.BufferUsageTransferDstBit)
	if bu != want {
		t.Fatalf("convBufferUsage:\nhave %v\nwant %v", bu, want)
	}

	// Render targets depend on the format.
	iu := convImageUsage(driver.URenderTarget|driver.UShaderSample, driver.D32f)
	wantImg := vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit | vk.ImageUsageSampledBit)
	if iu != wantImg {
		t.Fatalf("convImageUsage(D32f):\nhave %v\nwant %v", iu, wantImg)
	}
	iu = convImageUsage(driver.URenderTarget|driver.UShaderWrite|driver.UCopySrc, driver.RGBA16f)
	wantImg = vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageStorageBit | vk.ImageUsageTransferSrcBit)
	if iu != wantImg {
		t.Fatalf("convImageUsage(RGBA16f):\nhave %v\nwant %v", iu, wantImg)
	}
}

func TestRasterConv(t *testing.T) {
	if m := convColorMask(driver.CAll); m != vk.ColorComponentFlags(vk.ColorComponentRBit|vk.ColorComponentGBit|vk.ColorComponentBBit|vk.ColorComponentABit) {
		t.Fatalf("convColorMask(CAll):\nhave %v", m)
	}
	if m := convColorMask(0); m != 0 {
		t.Fatalf("convColorMask(0):\nhave %v\nwant 0", m)
	}
	// Reversed Z relies on greater-or-equal.
	if f := convCmpFunc(driver.CGreaterEqual); f != vk.CompareOpGreaterOrEqual {
		t.Fatalf("convCmpFunc(CGreaterEqual):\nhave %v\nwant %v", f, vk.CompareOpGreaterOrEqual)
	}
	if f := convCmpFunc(driver.CNever); f != vk.CompareOpNever {
		t.Fatalf("convCmpFunc(CNever):\nhave %v\nwant %v", f, vk.CompareOpNever)
	}
	if tp := convTopology(driver.TLine); tp != vk.PrimitiveTopologyLineList {
		t.Fatalf("convTopology(TLine):\nhave %v\nwant %v", tp, vk.PrimitiveTopologyLineList)
	}
	if c := convCullMode(driver.CNone); c != vk.CullModeFlags(vk.CullModeNone) {
		t.Fatalf("convCullMode(CNone):\nhave %v", c)
	}
	if i := convIndexFmt(driver.Index16); i != vk.IndexTypeUint16 {
		t.Fatalf("convIndexFmt(Index16):\nhave %v\nwant %v", i, vk.IndexTypeUint16)
	}
}

func TestCheckResult(t *testing.T) {
	for _, x := range [...]struct {
		res  vk.Result
		want error
	}{
		{vk.Success, nil},
		{vk.Suboptimal, nil},
		{vk.Timeout, driver.ErrTimeout},
		{vk.ErrorOutOfDeviceMemory, driver.ErrNoDeviceMemory},
		{vk.ErrorOutOfHostMemory, driver.ErrNoHostMemory},
		{vk.ErrorDeviceLost, driver.ErrFatal},
		{vk.ErrorOutOfDate, driver.ErrSwapchain},
		{vk.ErrorSurfaceLost, driver.ErrWindow},
	} {
		if err := checkResult(x.res); err != x.want {
			t.Fatalf("checkResult(%v):\nhave %v\nwant %v", x.res, err, x.want)
		}
	}
	if err := checkResult(vk.ErrorFormatNotSupported); err == nil {
		t.Fatal("checkResult(ErrorFormatNotSupported):\nhave nil\nwant non-nil")
	}
}

func TestSpirvWords(t *testing.T) {
	valid := []byte{
		0x03, 0x02, 0x23, 0x07,
		0x00, 0x00, 0x01, 0x00,
		0, 0, 0, 0,
		1, 0, 0, 0,
		0, 0, 0, 0,
	}
	w := spirvWords(valid)
	if len(w) != 5 || w[0] != spirvMagic || w[3] != 1 {
		t.Fatalf("spirvWords:\nhave %v\nwant [%#x ...]", w, spirvMagic)
	}
	for _, code := range [...][]byte{
		nil,
		valid[:16],
		valid[:19],
		append([]byte{0, 0, 0, 0}, valid[4:]...),
	} {
		if w := spirvWords(code); w != nil {
			t.Fatalf("spirvWords(%v):\nhave %v\nwant nil", code, w)
		}
	}
}

func TestPassKey(t *testing.T) {
	color := &imageView{im: &image{fmt: driver.RGBA16f}}
	normal := &imageView{im: &image{fmt: driver.RGBA8un}}
	depth := &imageView{im: &image{fmt: driver.D32f}}
	pass := driver.PassDesc{
		Color: []driver.ColorTarget{
			{View: color, Load: driver.LClear, Store: driver.SStore},
			{View: normal, Load: driver.LLoad, Store: driver.SStore},
		},
		DS:     &driver.DSTarget{View: depth, Load: driver.LClear, Store: driver.SStore},
		Width:  64,
		Height: 32,
	}
	k := keyOf(&pass)
	if k.ncolor != 2 || !k.hasDS {
		t.Fatalf("keyOf: attachments:\nhave %d, %t\nwant 2, true", k.ncolor, k.hasDS)
	}
	if k.color[0].format != vk.FormatR16g16b16a16Sfloat || k.color[0].load != vk.AttachmentLoadOpClear {
		t.Fatalf("keyOf: color[0]:\nhave %+v", k.color[0])
	}
	if k.color[1].load != vk.AttachmentLoadOpLoad || k.color[1].layout != vk.ImageLayoutColorAttachmentOptimal {
		t.Fatalf("keyOf: color[1]:\nhave %+v", k.color[1])
	}
	if k.ds.layout != vk.ImageLayoutDepthStencilAttachmentOptimal {
		t.Fatalf("keyOf: ds layout:\nhave %v\nwant %v", k.ds.layout, vk.ImageLayoutDepthStencilAttachmentOptimal)
	}

	// Size and views do not affect the pass.
	pass.Width, pass.Height = 1, 1
	pass.Color[0].View = &imageView{im: &image{fmt: driver.RGBA16f}}
	if k2 := keyOf(&pass); k2 != k {
		t.Fatal("keyOf: should not depend on size or views")
	}

	pass.DS.ReadOnly = true
	pass.DS.Load = driver.LLoad
	if k2 := keyOf(&pass); k2.ds.layout != vk.ImageLayoutDepthStencilReadOnlyOptimal {
		t.Fatalf("keyOf: read-only ds layout:\nhave %v\nwant %v", k2.ds.layout, vk.ImageLayoutDepthStencilReadOnlyOptimal)
	}

	pass.Color = nil
	if k2 := keyOf(&pass); k2.ncolor != 0 || k2.color != ([driver.MaxColorTargets]attachKey{}) {
		t.Fatalf("keyOf: depth-only:\nhave %+v", k2)
	}
}
