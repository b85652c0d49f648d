// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

// #include <stddef.h>
// #include <stdint.h>
// #include <stdlib.h>
//
// typedef struct {
// 	uint32_t sType;
// 	const void* pNext;
// 	uint64_t buffer;
// } bufferAddrInfo;
//
// typedef void (*voidFunction)(void);
// typedef voidFunction (*getDeviceProcAddrFunction)(void*, const char*);
// typedef uint64_t (*getBufferAddrFunction)(void*, const bufferAddrInfo*);
//
// static void* deviceProc(void* getDeviceProcAddr, void* dev, const char* name) {
// 	return (void*)((getDeviceProcAddrFunction)getDeviceProcAddr)(dev, name);
// }
//
// static uint64_t bufferAddr(void* getBufferAddr, void* dev, uint32_t sType, uint64_t buf) {
// 	bufferAddrInfo info = {sType, NULL, buf};
// 	return ((getBufferAddrFunction)getBufferAddr)(dev, &info);
// }
import "C"

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"

	"github.com/gviegas/deferred/driver"
)

// deviceProcs holds the device-level commands that the
// bindings do not expose.
type deviceProcs struct {
	lib           library
	getBufferAddr unsafe.Pointer
}

// init fetches the commands of dev.
func (p *deviceProcs) init(dev vk.Device) error {
	getDeviceProcAddr, err := p.lib.open()
	if err != nil {
		return err
	}
	name := C.CString("vkGetBufferDeviceAddress")
	defer C.free(unsafe.Pointer(name))
	p.getBufferAddr = C.deviceProc(getDeviceProcAddr, unsafe.Pointer(dev), name)
	if p.getBufferAddr == nil {
		p.close()
		return errors.Wrap(driver.ErrNoDevice, "vk: vkGetBufferDeviceAddress not found")
	}
	return nil
}

// valid returns whether p can be called.
func (p *deviceProcs) valid() bool { return p.getBufferAddr != nil }

// bufferAddr calls vkGetBufferDeviceAddress.
// The buffer must have been created with address usage.
func (p *deviceProcs) bufferAddr(dev vk.Device, buf vk.Buffer) uint64 {
	// Non-dispatchable handles are 64 bits wide on
	// every platform.
	h := *(*uint64)(unsafe.Pointer(&buf))
	return uint64(C.bufferAddr(p.getBufferAddr, unsafe.Pointer(dev), C.uint32_t(vk.StructureTypeBufferDeviceAddressInfo), C.uint64_t(h)))
}

// close unloads the library and invalidates the commands.
func (p *deviceProcs) close() {
	p.lib.close()
	*p = deviceProcs{}
}
