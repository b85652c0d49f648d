// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"fmt"
	"log"
	"time"

	"github.com/gviegas/deferred/driver"
	"github.com/gviegas/deferred/driver/drivertest"
)

func init() {
	driver.Register(&drivertest.Driver{})
}

// Example_copy uploads data to a device buffer through a
// host-visible staging buffer.
func Example_copy() {
	// Select a driver to use.
	drv, ok := driver.Lookup("DriverTest")
	if !ok {
		log.Fatal("driver.Lookup: driver not found")
	}
	gpu, err := drv.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer drv.Close()

	stg, err := gpu.NewBuffer(16, true, driver.UCopySrc)
	if err != nil {
		log.Fatal(err)
	}
	defer stg.Destroy()
	dst, err := gpu.NewBuffer(16, false, driver.UCopyDst|driver.UShaderRead|driver.UAddress)
	if err != nil {
		log.Fatal(err)
	}
	defer dst.Destroy()
	copy(stg.Bytes(), "vertices|indices")

	cb, err := gpu.NewCmdBuffer()
	if err != nil {
		log.Fatal(err)
	}
	defer cb.Destroy()
	if err := cb.Begin(); err != nil {
		log.Fatal(err)
	}
	cb.CopyBuffer(&driver.BufferCopy{From: stg, FromOff: 9, To: dst, ToOff: 0, Size: 7})
	cb.CopyBuffer(&driver.BufferCopy{From: stg, FromOff: 0, To: dst, ToOff: 8, Size: 8})
	cb.BufferBarrier([]driver.BufferBarrier{{
		Barrier: driver.Barrier{
			SyncBefore:   driver.SCopy,
			SyncAfter:    driver.SVertexShading,
			AccessBefore: driver.ACopyWrite,
			AccessAfter:  driver.AShaderRead,
		},
		Buf: dst,
	}})
	if err := cb.End(); err != nil {
		log.Fatal(err)
	}

	fence, err := gpu.NewFence(false)
	if err != nil {
		log.Fatal(err)
	}
	defer fence.Destroy()
	if err := gpu.Submit(&driver.Submission{Cmds: []driver.CmdBuffer{cb}, Fence: fence}); err != nil {
		log.Fatal(err)
	}
	if err := fence.Wait(time.Second); err != nil {
		log.Fatal(err)
	}

	// The fake GPU keeps the contents of every buffer.
	fmt.Printf("%q\n", dst.(*drivertest.Buffer).Data())
	fmt.Println(dst.Addr() != 0)
	// Output:
	// "indices\x00vertices"
	// true
}
