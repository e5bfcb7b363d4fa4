package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveBinary returns the executable a configured command line runs. Only
// the first word is resolved; the remainder are arguments. A path containing
// a separator is checked in place instead of searched on PATH.
func ResolveBinary(command string) (string, bool) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return "", false
	}
	name := fields[0]
	if strings.ContainsRune(name, filepath.Separator) {
		info, err := os.Stat(name)
		if err != nil || !isExecutable(info) {
			return name, false
		}
		return name, true
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return name, false
	}
	return resolved, true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
