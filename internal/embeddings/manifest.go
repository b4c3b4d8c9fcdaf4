package embeddings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestFile is the checksum manifest expected in every model directory.
const ManifestFile = "checksums.json"

const maxManifestSize = 1024 * 1024

var (
	// ErrManifestMissing indicates the model directory has no checksums.json.
	ErrManifestMissing = errors.New("checksum manifest missing")

	// ErrAssetMissing indicates a file listed in the manifest does not exist.
	ErrAssetMissing = errors.New("model asset missing")

	// ErrChecksumMismatch indicates a file's SHA-256 differs from the manifest.
	ErrChecksumMismatch = errors.New("model asset checksum mismatch")
)

// Manifest lists the SHA-256 digest of every model asset.
type Manifest struct {
	Model string            `json:"model"`
	Files map[string]string `json:"files"`
}

// LoadManifest reads and parses dir/checksums.json.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestMissing, path)
		}
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest larger than %d bytes", ErrInvalidConfig, maxManifestSize)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", ErrInvalidConfig, err)
	}
	if len(m.Files) == 0 {
		return nil, fmt.Errorf("%w: manifest lists no files", ErrInvalidConfig)
	}
	return &m, nil
}

// VerifyAssets checks every file listed in dir's manifest against its digest.
// Files are checked in sorted order so the first reported failure is stable.
func VerifyAssets(dir string) (*Manifest, error) {
	m, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(m.Files))
	for name := range m.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("%w: asset path %q escapes model directory", ErrInvalidConfig, name)
		}
		got, err := fileSHA256(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrAssetMissing, name)
			}
			return nil, fmt.Errorf("hashing %s: %w", name, err)
		}
		want := strings.ToLower(strings.TrimSpace(m.Files[name]))
		if got != want {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
		}
	}
	return m, nil
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
