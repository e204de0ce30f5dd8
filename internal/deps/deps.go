package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"vidscribe/internal/config"
)

// Requirement defines an external dependency vidscribe relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	VersionArgs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Requirements lists the binaries a configured pipeline needs. nvidia-smi is
// optional; its absence only means device "auto" resolves to cpu.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{Name: "yt-dlp", Command: cfg.FetcherBinary(), Description: "Media fetcher (captions and audio)", VersionArgs: []string{"--version"}},
		{Name: "FFmpeg", Command: cfg.FFmpegBinary(), Description: "Audio extraction for the fetcher", VersionArgs: []string{"-version"}},
		{Name: "WhisperX launcher", Command: cfg.EngineBinary(), Description: "Runs the speech recognition engine", VersionArgs: []string{"--version"}},
		{Name: "nvidia-smi", Command: "nvidia-smi", Description: "CUDA device detection", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// ProbeVersions fills Status.Version for available binaries by running their
// version flag. A probe that fails or times out leaves the version empty.
func ProbeVersions(ctx context.Context, requirements []Requirement, statuses []Status) {
	for i := range statuses {
		if i >= len(requirements) || !statuses[i].Available || len(requirements[i].VersionArgs) == 0 {
			continue
		}
		statuses[i].Version = probeVersion(ctx, statuses[i].Command, requirements[i].VersionArgs)
	}
}

// MissingRequired returns the names of unavailable, non-optional requirements.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

func probeVersion(ctx context.Context, command string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, command, args...).Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) > 60 {
			line = line[:60]
		}
		return line
	}
	return ""
}
