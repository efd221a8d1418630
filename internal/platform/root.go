package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

// vaultMarkers identify a vault root.
var vaultMarkers = []string{".obsidian", ".notesync"}

// FindRoot walks up from startDir to the nearest directory holding a vault
// marker and returns its absolute path.
func FindRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	dir := abs
	for {
		for _, m := range vaultMarkers {
			if hasFile(dir, m) {
				return dir, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("no vault found above %s", abs)
}

func hasFile(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
