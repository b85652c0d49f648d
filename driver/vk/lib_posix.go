// Copyright 2024 Gustavo C. Viegas. All rights reserved.

//go:build !windows

package vk

// #cgo linux LDFLAGS: -ldl
// #include <dlfcn.h>
// #include <stdlib.h>
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/gviegas/deferred/driver"
)

// library is a reference to the Vulkan loader.
type library struct {
	h unsafe.Pointer
}

// open loads the Vulkan library and fetches
// vkGetDeviceProcAddr.
func (l *library) open() (unsafe.Pointer, error) {
	var lib *C.char
	switch runtime.GOOS {
	case "android":
		lib = C.CString("libvulkan.so")
	case "darwin", "ios":
		lib = C.CString("libvulkan.1.dylib")
	default:
		lib = C.CString("libvulkan.so.1")
	}
	defer C.free(unsafe.Pointer(lib))
	h := C.dlopen(lib, C.RTLD_LAZY|C.RTLD_LOCAL)
	if h == nil {
		return nil, driver.ErrNotInstalled
	}
	sym := C.CString("vkGetDeviceProcAddr")
	defer C.free(unsafe.Pointer(sym))
	f := C.dlsym(h, sym)
	if f == nil {
		C.dlclose(h)
		return nil, driver.ErrNotInstalled
	}
	l.h = h
	return f, nil
}

// close unloads the library.
func (l *library) close() {
	if l.h != nil {
		C.dlclose(l.h)
	}
	*l = library{}
}
