// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API.
//
// Resources that the driver package treats as independently
// bindable (shaders, in particular) are emulated on top of
// Vulkan pipelines, which are created on demand and cached
// for the lifetime of the GPU.
package vk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

const driverName = "vulkan"

// Buffer device addresses became core in 1.2.
var apiVersion = vk.MakeVersion(1, 2, 0)

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	inst  vk.Instance
	pdev  vk.PhysicalDevice
	dname string
	dvers uint32
	dev   vk.Device
	que   vk.Queue
	qfam  uint32

	// Queue submission and presentation require
	// that the queue handle be externally
	// synchronized.
	qmu sync.Mutex

	// Instance extensions that were enabled.
	iexts []string

	mprop vk.PhysicalDeviceMemoryProperties
	feat  vk.PhysicalDeviceFeatures
	lim   driver.Limits

	procs  deviceProcs
	passes passCache
	pipes  pipelineCache

	log *slog.Logger
}

func init() {
	driver.Register(&Driver{})
}

// safeString returns s terminated by a null byte.
func safeString(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

// safeStrings calls safeString on every element of ss.
func safeStrings(ss []string) []string {
	res := make([]string, len(ss))
	for i := range ss {
		res[i] = safeString(ss[i])
	}
	return res
}

// Surface extensions that are enabled in the instance when
// available. The window system decides which one it needs.
var surfaceExts = [...]string{
	"VK_KHR_surface",
	"VK_KHR_xlib_surface",
	"VK_KHR_xcb_surface",
	"VK_KHR_wayland_surface",
	"VK_KHR_win32_surface",
	"VK_KHR_android_surface",
	"VK_EXT_metal_surface",
	"VK_MVK_macos_surface",
}

// instanceExts returns the names of every available instance
// extension.
func instanceExts() ([]string, error) {
	var n uint32
	if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := checkResult(vk.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := range props[:n] {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names, nil
}

// deviceExts returns the names of every extension that pdev
// exposes.
func deviceExts(pdev vk.PhysicalDevice) ([]string, error) {
	var n uint32
	if err := checkResult(vk.EnumerateDeviceExtensionProperties(pdev, "", &n, nil)); err != nil {
		return nil, err
	}
	props := make([]vk.ExtensionProperties, n)
	if err := checkResult(vk.EnumerateDeviceExtensionProperties(pdev, "", &n, props)); err != nil {
		return nil, err
	}
	names := make([]string, 0, n)
	for i := range props[:n] {
		props[i].Deref()
		names = append(names, vk.ToString(props[i].ExtensionName[:]))
	}
	return names, nil
}

// initInstance initializes the Vulkan instance.
func (d *Driver) initInstance() error {
	avail, err := instanceExts()
	if err != nil {
		return err
	}
	d.iexts = d.iexts[:0]
	for _, e := range surfaceExts {
		for _, a := range avail {
			if a == e {
				d.iexts = append(d.iexts, e)
				break
			}
		}
	}
	info := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: safeString("deferred"),
			PEngineName:      safeString("deferred"),
			ApiVersion:       apiVersion,
		},
		EnabledExtensionCount:   uint32(len(d.iexts)),
		PpEnabledExtensionNames: safeStrings(d.iexts),
	}
	var inst vk.Instance
	if err := checkResult(vk.CreateInstance(&info, nil, &inst)); err != nil {
		return errors.Wrap(err, "vk: vkCreateInstance")
	}
	d.inst = inst
	return errors.Wrap(vk.InitInstance(inst), "vk: loading instance procs")
}

// initDevice selects a physical device and creates the
// Vulkan device.
func (d *Driver) initDevice() error {
	var n uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	devs := make([]vk.PhysicalDevice, n)
	if err := checkResult(vk.EnumeratePhysicalDevices(d.inst, &n, devs)); err != nil {
		return err
	}

	// The bare minimum is a 1.2 device with a queue that
	// supports graphics and compute operations.
	// Hardware-accelerated devices with swapchain support
	// are preferred.
	weight := 0
	for _, dev := range devs[:n] {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		if props.ApiVersion < apiVersion {
			continue
		}
		var qn uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qn, nil)
		qprops := make([]vk.QueueFamilyProperties, qn)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qn, qprops)
		fam := -1
		flg := vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit)
		for i := range qprops[:qn] {
			qprops[i].Deref()
			if qprops[i].QueueFlags&flg == flg {
				fam = i
				break
			}
		}
		if fam == -1 {
			continue
		}
		wgt := 1
		switch props.DeviceType {
		case vk.PhysicalDeviceTypeDiscreteGpu:
			wgt += 2
		case vk.PhysicalDeviceTypeIntegratedGpu:
			wgt++
		}
		if exts, err := deviceExts(dev); err == nil {
			for _, e := range exts {
				if e == "VK_KHR_swapchain" {
					wgt += 3
					break
				}
			}
		}
		if wgt > weight {
			d.pdev = dev
			d.dname = vk.ToString(props.DeviceName[:])
			d.dvers = props.ApiVersion
			d.qfam = uint32(fam)
			props.Limits.Deref()
			d.setLimits(&props.Limits)
			weight = wgt
		}
	}
	if weight == 0 {
		return driver.ErrNoDevice
	}
	vk.GetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.mprop.Deref()

	var fq vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.pdev, &fq)
	fq.Deref()
	d.feat = vk.PhysicalDeviceFeatures{
		FillModeNonSolid:  fq.FillModeNonSolid,
		DepthBiasClamp:    fq.DepthBiasClamp,
		WideLines:         fq.WideLines,
		ShaderInt64:       fq.ShaderInt64,
		SamplerAnisotropy: fq.SamplerAnisotropy,
	}
	bda := vk.PhysicalDeviceBufferDeviceAddressFeatures{
		SType:               vk.StructureTypePhysicalDeviceBufferDeviceAddressFeatures,
		BufferDeviceAddress: vk.True,
	}
	bdaRef, bdaAllocs := bda.PassRef()
	defer bdaAllocs.Free()

	exts := []string{}
	if avail, err := deviceExts(d.pdev); err == nil {
		for _, e := range avail {
			if e == "VK_KHR_swapchain" {
				exts = append(exts, e)
				break
			}
		}
	}
	info := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		PNext:                unsafe.Pointer(bdaRef),
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.qfam,
			QueueCount:       1,
			PQueuePriorities: []float32{1},
		}},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: safeStrings(exts),
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{d.feat},
	}
	var dev vk.Device
	if err := checkResult(vk.CreateDevice(d.pdev, &info, nil, &dev)); err != nil {
		return errors.Wrap(err, "vk: vkCreateDevice")
	}
	d.dev = dev
	var que vk.Queue
	vk.GetDeviceQueue(d.dev, d.qfam, 0, &que)
	d.que = que
	return nil
}

// setLimits sets d.lim.
func (d *Driver) setLimits(lim *vk.PhysicalDeviceLimits) {
	d.lim = driver.Limits{
		MaxImage2D:       int(lim.MaxImageDimension2D),
		MaxPushConstants: int(lim.MaxPushConstantsSize),
		MaxDescSets:      int(lim.MaxBoundDescriptorSets),
		MaxColorTargets:  min(int(lim.MaxColorAttachments), driver.MaxColorTargets),
		MaxDispatch: [3]int{
			int(lim.MaxComputeWorkGroupCount[0]),
			int(lim.MaxComputeWorkGroupCount[1]),
			int(lim.MaxComputeWorkGroupCount[2]),
		},
	}
}

// Open initializes the driver.
func (d *Driver) Open() (gpu driver.GPU, err error) {
	if d.dev != nil {
		return d, nil
	}
	if err = vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, driver.ErrNotInstalled
	}
	if err = vk.Init(); err != nil {
		return nil, errors.Wrap(driver.ErrNotInstalled, err.Error())
	}
	if err = d.initInstance(); err != nil {
		d.Close()
		return nil, err
	}
	if err = d.initDevice(); err != nil {
		d.Close()
		return nil, err
	}
	if err = d.procs.init(d.dev); err != nil {
		d.Close()
		return nil, err
	}
	d.passes.init(d)
	d.pipes.init(d)
	d.logger().Debug("vk: device opened", "device", d.dname, "version", versionString(d.dvers))
	return d, nil
}

// SetLogger sets the logger of debug messages.
// Records are discarded by default.
func (d *Driver) SetLogger(l *slog.Logger) { d.log = l }

func (d *Driver) logger() *slog.Logger {
	if d.log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.log
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.dev != nil {
		vk.DeviceWaitIdle(d.dev)
		d.pipes.destroy()
		d.passes.destroy()
		vk.DestroyDevice(d.dev, nil)
	}
	d.procs.close()
	if d.inst != nil {
		vk.DestroyInstance(d.inst, nil)
	}
	*d = Driver{log: d.log}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.lim }

// WaitIdle blocks until the device is idle.
func (d *Driver) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(d.dev))
}

// DeviceName returns the name of the physical device that
// the driver is using.
func (d *Driver) DeviceName() string { return d.dname }

// memory represents a device memory allocation.
type memory struct {
	d    *Driver
	size int64
	vis  bool
	p    []byte
	mem  vk.DeviceMemory
}

// selectMemory selects a suitable memory type from the
// device. It returns the index of the selected memory, or
// -1 if none suffices.
func (d *Driver) selectMemory(typeBits uint32, prop vk.MemoryPropertyFlags) int {
	for i := 0; i < int(d.mprop.MemoryTypeCount); i++ {
		if 1<<i&typeBits != 0 {
			d.mprop.MemoryTypes[i].Deref()
			if d.mprop.MemoryTypes[i].PropertyFlags&prop == prop {
				return i
			}
		}
	}
	return -1
}

// newMemory allocates device memory that satisfies req.
// If visible is true, the memory is mapped for the whole
// of its lifetime.
func (d *Driver) newMemory(req *vk.MemoryRequirements, visible, addr bool) (*memory, error) {
	prop := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if visible {
		prop |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	typ := d.selectMemory(req.MemoryTypeBits, prop)
	if typ == -1 {
		// Device-local memory is desired but not required.
		prop &^= vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
		if typ = d.selectMemory(req.MemoryTypeBits, prop); typ == -1 {
			return nil, errors.New("vk: no suitable memory type found")
		}
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	if addr {
		flags := vk.MemoryAllocateFlagsInfo{
			SType: vk.StructureTypeMemoryAllocateFlagsInfo,
			Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
		}
		ref, allocs := flags.PassRef()
		defer allocs.Free()
		info.PNext = unsafe.Pointer(ref)
	}
	var mem vk.DeviceMemory
	if err := checkResult(vk.AllocateMemory(d.dev, &info, nil, &mem)); err != nil {
		return nil, err
	}
	return &memory{
		d:    d,
		size: int64(req.Size),
		vis:  visible,
		mem:  mem,
	}, nil
}

// mmap maps the memory for host access.
// It must be called after the memory is bound.
func (m *memory) mmap() error {
	if !m.vis {
		panic("cannot map memory that is not host visible")
	}
	if len(m.p) != 0 {
		return nil
	}
	var p unsafe.Pointer
	if err := checkResult(vk.MapMemory(m.d.dev, m.mem, 0, vk.DeviceSize(vk.WholeSize), 0, &p)); err != nil {
		return err
	}
	m.p = unsafe.Slice((*byte)(p), m.size)
	return nil
}

// free unmaps and deallocates the memory.
func (m *memory) free() {
	if m == nil || m.d == nil {
		return
	}
	if len(m.p) != 0 {
		vk.UnmapMemory(m.d.dev, m.mem)
	}
	vk.FreeMemory(m.d.dev, m.mem, nil)
	*m = memory{}
}

// checkResult returns an error derived from a vk.Result
// value. If such value does not indicate an error, it
// returns nil instead.
func checkResult(res vk.Result) error {
	switch res {
	case vk.Success, vk.Incomplete, vk.Suboptimal:
		return nil
	case vk.Timeout, vk.NotReady:
		return driver.ErrTimeout
	case vk.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		return driver.ErrFatal
	case vk.ErrorOutOfDate:
		return driver.ErrSwapchain
	case vk.ErrorSurfaceLost, vk.ErrorNativeWindowInUse:
		return driver.ErrWindow
	case vk.ErrorIncompatibleDriver, vk.ErrorInitializationFailed:
		return driver.ErrNotInstalled
	}
	return errors.Wrap(vk.Error(res), "vk")
}

// versionString formats a version number created by
// vk.MakeVersion.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22&0x7f, v>>12&0x3ff, v&0xfff)
}
