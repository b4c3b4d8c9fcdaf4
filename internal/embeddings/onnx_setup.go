//go:build cgo

package embeddings

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// onnxEnv is the variable fastembed-go reads the runtime location from.
const onnxEnv = "ONNX_PATH"

func onnxLibraryName(goos string) string {
	if goos == "darwin" {
		return "libonnxruntime.dylib"
	}
	return "libonnxruntime.so"
}

// onnxCandidates lists where the runtime may live, in the order searched:
// $ONNX_PATH, <cacheDir>/lib, then ~/.config/chatloop/lib.
func onnxCandidates(cacheDir string) []string {
	lib := onnxLibraryName(runtime.GOOS)
	var paths []string
	if p := os.Getenv(onnxEnv); p != "" {
		paths = append(paths, p)
	}
	if cacheDir != "" {
		paths = append(paths, filepath.Join(cacheDir, "lib", lib))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "chatloop", "lib", lib))
	}
	return paths
}

// findONNXRuntime returns the first candidate that is a regular file.
func findONNXRuntime(cacheDir string) (string, error) {
	candidates := onnxCandidates(cacheDir)
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: onnx runtime library not found (searched %s)",
		ErrModelUnavailable, strings.Join(candidates, ", "))
}

// useONNXRuntime points fastembed-go at path. A variable so tests can
// observe it without touching the process environment.
var useONNXRuntime = func(path string) error {
	return os.Setenv(onnxEnv, path)
}
