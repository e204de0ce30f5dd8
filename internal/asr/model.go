package asr

import (
	"fmt"
	"strings"
)

// Size is a Whisper model size.
type Size string

const (
	SizeTiny   Size = "tiny"
	SizeBase   Size = "base"
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// ParseSize accepts the catalog names plus the versioned large aliases.
func ParseSize(value string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "tiny":
		return SizeTiny, nil
	case "base":
		return SizeBase, nil
	case "small":
		return SizeSmall, nil
	case "medium":
		return SizeMedium, nil
	case "large", "large-v3", "large-v2":
		return SizeLarge, nil
	default:
		return "", fmt.Errorf("unknown model size %q", value)
	}
}

// EngineModel is the model name passed to the engine.
func (s Size) EngineModel() string {
	if s == SizeLarge {
		return "large-v3"
	}
	return string(s)
}

// Device is the compute device a model runs on.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ParseDevice accepts auto, cpu, cuda, and gpu.
func ParseDevice(value string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return DeviceAuto, nil
	case "cpu":
		return DeviceCPU, nil
	case "cuda", "gpu":
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unknown device %q", value)
	}
}

// ComputeType is the default numeric precision for a device.
func (d Device) ComputeType() string {
	if d == DeviceCUDA {
		return "float16"
	}
	return "int8"
}

// ModelKey identifies one loaded model in the cache.
type ModelKey struct {
	Size   Size
	Device Device
}

func (k ModelKey) String() string {
	return string(k.Size) + "/" + string(k.Device)
}

// ModelInfo describes a catalog entry.
type ModelInfo struct {
	Size        Size
	Name        string
	Description string
	ApproxMB    int
}

var catalog = []ModelInfo{
	{SizeTiny, "Tiny", "fastest, rough accuracy", 75},
	{SizeBase, "Base", "fast, fair accuracy", 145},
	{SizeSmall, "Small", "balanced speed and accuracy", 466},
	{SizeMedium, "Medium", "recommended, high accuracy", 1500},
	{SizeLarge, "Large-v3", "best accuracy, slowest", 3000},
}

// Models returns the catalog in ascending size order.
func Models() []ModelInfo {
	out := make([]ModelInfo, len(catalog))
	copy(out, catalog)
	return out
}

// Info returns the catalog entry for size.
func Info(size Size) (ModelInfo, bool) {
	for _, info := range catalog {
		if info.Size == size {
			return info, true
		}
	}
	return ModelInfo{}, false
}
