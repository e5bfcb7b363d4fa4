package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"behaviorpipe/internal/config"
	"behaviorpipe/internal/deps"
	"behaviorpipe/internal/services/pose"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.W_OK|unix.X_OK, "read/write ok")
}

// CheckDirectoryReadable verifies that the directory exists and can be listed.
func CheckDirectoryReadable(name, path string) Result {
	return checkDirectory(name, path, unix.R_OK|unix.X_OK, "readable")
}

func checkDirectory(name, path string, mode uint32, okDetail string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, mode); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", path, okDetail)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minBytes available to unprivileged users.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s (%s free)", path, formatBytes(free))
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s; want at least %s", detail, formatBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckModelFile verifies that a pose model configuration exists.
func CheckModelFile(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckSystemDeps evaluates the external commands a run with the given
// perspective executes. Both the run path and the doctor command use this
// to avoid duplicating the requirements list.
func CheckSystemDeps(cfg *config.Config, perspective string) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "rclone",
			Command:     cfg.Transfer.Binary,
			Description: "Required to publish artifacts to final storage",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Encoder.Binary,
			Description: "Required to build trial movies",
		},
	}
	if perspective != config.PerspectiveSide {
		requirements = append(requirements,
			deps.Requirement{
				Name:        "Pose analyzer",
				Command:     cfg.Pose.Command,
				Description: "Required for posture and whisker analysis",
			},
			deps.Requirement{
				Name:        "View splitter",
				Command:     cfg.Transform.Command,
				Description: "Required to split top videos into left and right views",
			},
			deps.Requirement{
				Name:        "Frame data writer",
				Command:     cfg.Transform.FrameDataCommand,
				Description: "Required to write per-trial frame spreadsheets",
			},
		)
	}
	return deps.CheckBinaries(requirements)
}

// CheckModels verifies the pose model configurations a top-perspective run
// loads.
func CheckModels(cfg *config.Config) []Result {
	return []Result{
		CheckModelFile("Top view model", pose.ModelPath(cfg.Pose, cfg.Pose.TopViewConfig)),
		CheckModelFile("Whisker model", pose.ModelPath(cfg.Pose, cfg.Pose.WhiskerConfig)),
	}
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
