// Package config resolves the chip-data file picprog loads its chip
// database from, the one piece of host-environment configuration the
// programmer needs beyond its CLI flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// FindChipData locates a chipdata.cid file on disk, trying in order the
// system-wide install path, the directory next to the running executable,
// and (on Windows) the user's local app-data directory. It returns "" with
// no error if none exists, so the caller can fall back to
// chipinfo.LoadEmbedded instead of failing outright.
func FindChipData() (string, error) {
	return firstExisting(searchPaths())
}

// searchPaths builds the ordered candidate list FindChipData checks.
func searchPaths() []string {
	var candidates []string
	candidates = append(candidates, filepath.Join(string(filepath.Separator), "usr", "share", "picpro", "chipdata.cid"))

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "chipdata.cid"),
			// Legacy install layouts placed the data file in a share/lib
			// tree next to the binary's prefix.
			filepath.Join(exeDir, "..", "share", "picpro", "chipdata.cid"),
			filepath.Join(exeDir, "..", "lib", "picpro", "chipdata.cid"),
		)
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			candidates = append(candidates, filepath.Join(appData, "picpro", "chipdata.cid"))
		}
	}
	return candidates
}

// firstExisting returns the first regular file among candidates that
// exists, or "" if none do.
func firstExisting(candidates []string) (string, error) {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", nil
}
