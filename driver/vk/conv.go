// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/goki/vulkan"

	"github.com/gviegas/deferred/driver"
)

// convSync converts a driver.Sync to a vk.PipelineStageFlags.
// before indicates whether the scope is the first one of a
// barrier, which only matters when s is driver.SNone.
func convSync(s driver.Sync, before bool) vk.PipelineStageFlags {
	if s == driver.SNone {
		if before {
			return vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		}
		return vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	if s&driver.SAll != 0 {
		return vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit)
	}
	var f vk.PipelineStageFlagBits
	if s&driver.SGraphics != 0 {
		f |= vk.PipelineStageAllGraphicsBit
	}
	if s&driver.SDraw != 0 {
		f |= vk.PipelineStageDrawIndirectBit | vk.PipelineStageVertexInputBit |
			vk.PipelineStageVertexShaderBit | vk.PipelineStageFragmentShaderBit |
			vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit |
			vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SVertexInput != 0 {
		f |= vk.PipelineStageVertexInputBit
	}
	if s&driver.SVertexShading != 0 {
		f |= vk.PipelineStageVertexShaderBit
	}
	if s&driver.SFragmentShading != 0 {
		f |= vk.PipelineStageFragmentShaderBit
	}
	if s&driver.SDSOutput != 0 {
		f |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SColorOutput != 0 {
		f |= vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SComputeShading != 0 {
		f |= vk.PipelineStageComputeShaderBit
	}
	if s&driver.SCopy != 0 {
		f |= vk.PipelineStageTransferBit
	}
	return vk.PipelineStageFlags(f)
}

// convAccess converts a driver.Access to a vk.AccessFlags.
func convAccess(a driver.Access) vk.AccessFlags {
	var f vk.AccessFlagBits
	if a&driver.AVertexBufRead != 0 {
		f |= vk.AccessVertexAttributeReadBit
	}
	if a&driver.AIndexBufRead != 0 {
		f |= vk.AccessIndexReadBit
	}
	if a&driver.AColorRead != 0 {
		f |= vk.AccessColorAttachmentReadBit
	}
	if a&driver.AColorWrite != 0 {
		f |= vk.AccessColorAttachmentWriteBit
	}
	if a&driver.ADSRead != 0 {
		f |= vk.AccessDepthStencilAttachmentReadBit
	}
	if a&driver.ADSWrite != 0 {
		f |= vk.AccessDepthStencilAttachmentWriteBit
	}
	if a&driver.AShaderRead != 0 {
		f |= vk.AccessShaderReadBit | vk.AccessUniformReadBit
	}
	if a&driver.AShaderWrite != 0 {
		f |= vk.AccessShaderWriteBit
	}
	if a&driver.ACopyRead != 0 {
		f |= vk.AccessTransferReadBit
	}
	if a&driver.ACopyWrite != 0 {
		f |= vk.AccessTransferWriteBit
	}
	if a&driver.AAnyRead != 0 {
		f |= vk.AccessMemoryReadBit
	}
	if a&driver.AAnyWrite != 0 {
		f |= vk.AccessMemoryWriteBit
	}
	return vk.AccessFlags(f)
}

// convLayout converts a driver.Layout to a vk.ImageLayout.
func convLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LCommon:
		return vk.ImageLayoutGeneral
	case driver.LColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vk.ImageLayoutPresentSrc
	}
	return vk.ImageLayoutUndefined
}

// convPixelFmt converts a driver.PixelFmt to a vk.Format.
func convPixelFmt(pf driver.PixelFmt) vk.Format {
	switch pf {
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	case driver.RGBA16f:
		return vk.FormatR16g16b16a16Sfloat
	case driver.RGBA32f:
		return vk.FormatR32g32b32a32Sfloat
	case driver.D16un:
		return vk.FormatD16Unorm
	case driver.D32f:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

// pixelFmtOf converts a vk.Format back to a driver.PixelFmt.
// It returns driver.FInvalid for formats that the driver
// package does not describe.
func pixelFmtOf(f vk.Format) driver.PixelFmt {
	for pf := driver.RGBA8un; pf <= driver.D32f; pf++ {
		if convPixelFmt(pf) == f {
			return pf
		}
	}
	return driver.FInvalid
}

// aspectOf returns the image aspect of a given format.
func aspectOf(pf driver.PixelFmt) vk.ImageAspectFlags {
	if pf.IsDepth() {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// convStage converts a driver.Stage to a vk.ShaderStageFlags.
func convStage(s driver.Stage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlagBits
	if s&driver.SVertex != 0 {
		f |= vk.ShaderStageVertexBit
	}
	if s&driver.SFragment != 0 {
		f |= vk.ShaderStageFragmentBit
	}
	if s&driver.SCompute != 0 {
		f |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(f)
}

// convDescType converts a driver.DescType to a
// vk.DescriptorType.
func convDescType(t driver.DescType) vk.DescriptorType {
	switch t {
	case driver.DBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DImage:
		return vk.DescriptorTypeStorageImage
	case driver.DConstant:
		return vk.DescriptorTypeUniformBuffer
	case driver.DTexture:
		return vk.DescriptorTypeCombinedImageSampler
	case driver.DSampler:
		return vk.DescriptorTypeSampler
	}
	panic("undefined descriptor type")
}

// convBufferUsage converts a driver.Usage to a
// vk.BufferUsageFlags.
func convBufferUsage(u driver.Usage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if u&(driver.UShaderRead|driver.UShaderWrite) != 0 {
		f |= vk.BufferUsageStorageBufferBit
	}
	if u&driver.UShaderConst != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if u&driver.UVertexData != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if u&driver.UIndexData != 0 {
		f |= vk.BufferUsageIndexBufferBit
	}
	if u&driver.UCopySrc != 0 {
		f |= vk.BufferUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		f |= vk.BufferUsageTransferDstBit
	}
	if u&driver.UAddress != 0 {
		f |= vk.BufferUsageShaderDeviceAddressBit
	}
	return vk.BufferUsageFlags(f)
}

// convImageUsage converts a driver.Usage to a
// vk.ImageUsageFlags.
func convImageUsage(u driver.Usage, pf driver.PixelFmt) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if u&(driver.UShaderRead|driver.UShaderWrite) != 0 && !pf.IsDepth() {
		f |= vk.ImageUsageStorageBit
	}
	if u&driver.UShaderSample != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if u&driver.URenderTarget != 0 {
		if pf.IsDepth() {
			f |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			f |= vk.ImageUsageColorAttachmentBit
		}
	}
	if u&driver.UCopySrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u&driver.UCopyDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(f)
}

// convLoadOp converts a driver.LoadOp to a
// vk.AttachmentLoadOp.
func convLoadOp(op driver.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vk.AttachmentLoadOpClear
	case driver.LLoad:
		return vk.AttachmentLoadOpLoad
	}
	return vk.AttachmentLoadOpDontCare
}

// convStoreOp converts a driver.StoreOp to a
// vk.AttachmentStoreOp.
func convStoreOp(op driver.StoreOp) vk.AttachmentStoreOp {
	if op == driver.SStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// convTopology converts a driver.Topology to a
// vk.PrimitiveTopology.
func convTopology(t driver.Topology) vk.PrimitiveTopology {
	switch t {
	case driver.TLine:
		return vk.PrimitiveTopologyLineList
	case driver.TPoint:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

// convCullMode converts a driver.CullMode to a
// vk.CullModeFlags.
func convCullMode(m driver.CullMode) vk.CullModeFlags {
	switch m {
	case driver.CFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	}
	return vk.CullModeFlags(vk.CullModeNone)
}

// convFillMode converts a driver.FillMode to a
// vk.PolygonMode.
func convFillMode(m driver.FillMode) vk.PolygonMode {
	if m == driver.FLines {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

// convCmpFunc converts a driver.CmpFunc to a vk.CompareOp.
func convCmpFunc(f driver.CmpFunc) vk.CompareOp {
	switch f {
	case driver.CLess:
		return vk.CompareOpLess
	case driver.CEqual:
		return vk.CompareOpEqual
	case driver.CLessEqual:
		return vk.CompareOpLessOrEqual
	case driver.CGreater:
		return vk.CompareOpGreater
	case driver.CNotEqual:
		return vk.CompareOpNotEqual
	case driver.CGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	case driver.CAlways:
		return vk.CompareOpAlways
	}
	return vk.CompareOpNever
}

// convColorMask converts a driver.ColorMask to a
// vk.ColorComponentFlags.
func convColorMask(m driver.ColorMask) vk.ColorComponentFlags {
	var f vk.ColorComponentFlagBits
	if m&driver.CRed != 0 {
		f |= vk.ColorComponentRBit
	}
	if m&driver.CGreen != 0 {
		f |= vk.ColorComponentGBit
	}
	if m&driver.CBlue != 0 {
		f |= vk.ColorComponentBBit
	}
	if m&driver.CAlpha != 0 {
		f |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(f)
}

// convFilter converts a driver.Filter to a vk.Filter.
func convFilter(f driver.Filter) vk.Filter {
	if f == driver.FLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

// convMipmapMode converts a driver.Filter to a
// vk.SamplerMipmapMode.
func convMipmapMode(f driver.Filter) vk.SamplerMipmapMode {
	if f == driver.FLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

// convAddrMode converts a driver.AddrMode to a
// vk.SamplerAddressMode.
func convAddrMode(m driver.AddrMode) vk.SamplerAddressMode {
	switch m {
	case driver.AMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case driver.AClamp:
		return vk.SamplerAddressModeClampToEdge
	case driver.ABorder:
		return vk.SamplerAddressModeClampToBorder
	}
	return vk.SamplerAddressModeRepeat
}

// convIndexFmt converts a driver.IndexFmt to a vk.IndexType.
func convIndexFmt(f driver.IndexFmt) vk.IndexType {
	if f == driver.Index16 {
		return vk.IndexTypeUint16
	}
	return vk.IndexTypeUint32
}
