// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package vk

// #include <windows.h>
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/gviegas/deferred/driver"
)

// library is a reference to the Vulkan loader.
type library struct {
	h C.HMODULE
}

// open loads the Vulkan library and fetches
// vkGetDeviceProcAddr.
func (l *library) open() (unsafe.Pointer, error) {
	lib := C.CString("vulkan-1.dll")
	defer C.free(unsafe.Pointer(lib))
	h := C.LoadLibrary(lib)
	if h == nil {
		return nil, driver.ErrNotInstalled
	}
	sym := C.CString("vkGetDeviceProcAddr")
	defer C.free(unsafe.Pointer(sym))
	f := C.GetProcAddress(h, sym)
	if f == nil {
		C.FreeLibrary(h)
		return nil, driver.ErrNotInstalled
	}
	l.h = h
	return unsafe.Pointer(f), nil
}

// close unloads the library.
func (l *library) close() {
	if l.h != nil {
		C.FreeLibrary(l.h)
	}
	*l = library{}
}
