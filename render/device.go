// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/canvas"
)

// DeviceHandle provides GPU device access from the host application.
//
// The renderer receives its device from the host; it does not create one
// unless asked to through OpenBackend. A handle passed to FromProvider
// must also expose the HAL objects:
//
//	HalDevice() any // hal.Device
//	HalQueue() any  // hal.Queue
type DeviceHandle = gpucontext.DeviceProvider

// DeviceOpener returns an open device and a release function, which may
// be nil when the device is owned by someone else. GPURenderer calls it
// once at construction and again from Recover.
type DeviceOpener func() (hal.OpenDevice, func(), error)

// FromProvider returns an opener that hands out the host's device. The
// host owns the device, so the release function is nil.
func FromProvider(p DeviceHandle) DeviceOpener {
	return func() (hal.OpenDevice, func(), error) {
		type halProvider interface {
			HalDevice() any
			HalQueue() any
		}
		if p == nil {
			return hal.OpenDevice{}, nil, errors.New("render: nil device handle")
		}
		hp, ok := p.(halProvider)
		if !ok {
			return hal.OpenDevice{}, nil, errors.New("render: provider does not expose HAL types")
		}
		device, ok := hp.HalDevice().(hal.Device)
		if !ok || device == nil {
			return hal.OpenDevice{}, nil, errors.New("render: provider HalDevice is not hal.Device")
		}
		queue, ok := hp.HalQueue().(hal.Queue)
		if !ok || queue == nil {
			return hal.OpenDevice{}, nil, errors.New("render: provider HalQueue is not hal.Queue")
		}
		return hal.OpenDevice{Device: device, Queue: queue}, nil, nil
	}
}

// OpenBackend returns an opener that creates its own instance on a
// registered HAL backend and opens the first discrete or integrated
// adapter, falling back to the first adapter. The backend package must be
// imported for its side effect, e.g. _ "github.com/gogpu/wgpu/hal/vulkan".
func OpenBackend(variant gputypes.Backend) DeviceOpener {
	return func() (hal.OpenDevice, func(), error) {
		backend, ok := hal.GetBackend(variant)
		if !ok {
			return hal.OpenDevice{}, nil, fmt.Errorf("render: backend %v: %w", variant, hal.ErrBackendNotFound)
		}
		instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			return hal.OpenDevice{}, nil, fmt.Errorf("render: create instance: %w", err)
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			return hal.OpenDevice{}, nil, errors.New("render: no GPU adapters found")
		}
		selected := &adapters[0]
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
				adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
		od, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
		if err != nil {
			instance.Destroy()
			return hal.OpenDevice{}, nil, fmt.Errorf("render: open device: %w", err)
		}
		canvas.Logger().Info("render: device opened", "adapter", selected.Info.Name)
		release := func() {
			od.Device.Destroy()
			instance.Destroy()
		}
		return od, release, nil
	}
}
