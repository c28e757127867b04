// Package descriptor reads and writes the human-authored TOML record
// for each source (spec §3 "Descriptor"), using
// github.com/pelletier/go-toml/v2 — the same TOML library the teacher
// uses for its own configuration surface.
package descriptor

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

// Path returns the descriptor file path for source under configRoot.
func Path(configRoot, source string) string {
	return filepath.Join(configRoot, "sources", source+".toml")
}

// Load reads and parses a source's descriptor.
func Load(configRoot, source string) (*types.Descriptor, error) {
	path := Path(configRoot, source)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blzerrors.NewNotFoundError(source)
		}
		return nil, blzerrors.NewIoError("read", path, err)
	}

	var d types.Descriptor
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, blzerrors.NewInvalidError("descriptor", path, err.Error())
	}
	return &d, nil
}

// Save pretty-prints d as TOML and writes it atomically (write to a
// temp file in the same directory, then rename).
func Save(configRoot string, d *types.Descriptor) error {
	path := Path(configRoot, d.Source)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return blzerrors.NewIoError("mkdir", filepath.Dir(path), err)
	}

	data, err := toml.Marshal(d)
	if err != nil {
		return blzerrors.NewInvalidError("descriptor", d.Source, err.Error())
	}

	return writeAtomic(path, data)
}

// Remove deletes a source's descriptor file. Missing files are not an
// error: removal is idempotent.
func Remove(configRoot, source string) error {
	path := Path(configRoot, source)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return blzerrors.NewIoError("remove", path, err)
	}
	return nil
}

// List returns every descriptor's source identifier found under
// configRoot/sources.
func List(configRoot string) ([]string, error) {
	dir := filepath.Join(configRoot, "sources")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, blzerrors.NewIoError("readdir", dir, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		const ext = ".toml"
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			out = append(out, name[:len(name)-len(ext)])
		}
	}
	return out, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-descriptor-*")
	if err != nil {
		return blzerrors.NewIoError("create_temp", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return blzerrors.NewIoError("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return blzerrors.NewIoError("close", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return blzerrors.NewIoError("rename", path, err)
	}
	return nil
}
