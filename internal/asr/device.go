package asr

import "os/exec"

// DeviceDetector resolves DeviceAuto to a concrete device.
type DeviceDetector func() Device

// DetectDevice reports cuda when an NVIDIA driver tool is on PATH.
func DetectDevice() Device {
	if _, err := exec.LookPath("nvidia-smi"); err == nil {
		return DeviceCUDA
	}
	return DeviceCPU
}
