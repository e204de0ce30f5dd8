package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// rotateThreshold is the size above which the active log is archived on startup.
const rotateThreshold = 8 << 20

// RetentionTarget specifies a directory and name pattern to prune. Dirs
// selects directories instead of files (stale per-task work directories).
type RetentionTarget struct {
	Dir     string
	Pattern string
	Dirs    bool
}

// ArchivePattern matches log files produced by RotateIfLarge.
const ArchivePattern = "vidscribe-*.log"

// RotateIfLarge renames the active log file to a timestamped archive when it
// has grown past the rotation threshold. Missing files are not an error.
func RotateIfLarge(logDir string, now time.Time) (string, error) {
	logDir = strings.TrimSpace(logDir)
	if logDir == "" {
		return "", nil
	}
	active := filepath.Join(logDir, LogFileName)
	info, err := os.Stat(active)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < rotateThreshold {
		return "", nil
	}
	archive := filepath.Join(logDir, "vidscribe-"+now.UTC().Format("20060102-150405")+".log")
	if err := os.Rename(active, archive); err != nil {
		return "", fmt.Errorf("rotate log file: %w", err)
	}
	return archive, nil
}

// CleanupOld removes entries matching the provided targets whose modification
// time is older than retentionDays. A retentionDays value of 0 disables pruning.
// It returns the number of removed entries.
func CleanupOld(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() != target.Dirs {
				continue
			}
			if pat := strings.TrimSpace(target.Pattern); pat != "" {
				if matched, err := filepath.Match(pat, entry.Name()); err != nil || !matched {
					continue
				}
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			fullPath := filepath.Join(dir, entry.Name())
			if err := os.RemoveAll(fullPath); err != nil {
				WarnIssue(logger, "retention remove failed; entry remains", Issue{
					Event:  "retention_failed",
					Hint:   "check permissions on " + dir,
					Impact: "stale file remains on disk",
					Err:    err,
				}, String("path", fullPath))
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("stale entry pruned",
					String("path", fullPath),
					String(FieldEventType, "retention_pruned"),
				)
			}
		}
	}
	return removed
}
