package utils

import (
	"os"
	"path/filepath"
	"strings"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ProgramName is the base name of a source file without its extension.
func ProgramName(srcPath string) string {
	base := filepath.Base(srcPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ArtifactPath returns <outDir>/<program name><ext> for srcPath and makes
// sure outDir exists. A relative outDir is taken from the working directory.
func ArtifactPath(srcPath, outDir, ext string) (string, error) {
	full, _, err := GetPathInfo(filepath.Join(outDir, ProgramName(srcPath)+ext))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	return full, nil
}
