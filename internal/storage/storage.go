// Package storage owns every file under a source's directory: the raw
// document, its parsed form, fetch metadata, archives, and the nested
// (opaque to this package) search index directory. It implements the
// layout and atomicity guarantees from spec §4.2, grounded on the
// teacher's write-temp-then-rename conventions used throughout
// internal/core/file_content_store*.go.
package storage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/outfitter-dev/blz/internal/blzerrors"
	"github.com/outfitter-dev/blz/internal/types"
)

const (
	fileRaw      = "llms.txt"
	fileParsed   = "llms.json"
	fileMeta     = "metadata.json"
	dirIndex     = ".index"
	dirArchives  = "archives"
	jsonIndent   = "  "
)

// Store is the sole owner of a data root's on-disk layout.
type Store struct {
	dataRoot string
	locks    *inProcessLocks
}

// NewStore opens (without creating) a storage root.
func NewStore(dataRoot string) *Store {
	return &Store{dataRoot: dataRoot, locks: newInProcessLocks()}
}

// DataRoot returns the configured data root.
func (s *Store) DataRoot() string { return s.dataRoot }

// SourceDir returns the directory for a source.
func (s *Store) SourceDir(source string) string {
	return filepath.Join(s.dataRoot, source)
}

// IndexDir returns the nested search-index directory for a source.
// Its contents are opaque to this package (owned by internal/index).
func (s *Store) IndexDir(source string) string {
	return filepath.Join(s.SourceDir(source), dirIndex)
}

func (s *Store) archivesDir(source string) string {
	return filepath.Join(s.SourceDir(source), dirArchives)
}

func (s *Store) rawPath(source string) string    { return filepath.Join(s.SourceDir(source), fileRaw) }
func (s *Store) parsedPath(source string) string  { return filepath.Join(s.SourceDir(source), fileParsed) }
func (s *Store) metaPath(source string) string    { return filepath.Join(s.SourceDir(source), fileMeta) }

// Exists reports whether a source directory with metadata already
// exists.
func (s *Store) Exists(source string) bool {
	_, err := os.Stat(s.metaPath(source))
	return err == nil
}

// Create reserves a source's directory. Fails with ExistsError if the
// source's metadata.json is already present.
func (s *Store) Create(source string) error {
	if s.Exists(source) {
		return blzerrors.NewExistsError(source)
	}
	dir := s.SourceDir(source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return blzerrors.NewIoError("mkdir", dir, err)
	}
	if err := os.MkdirAll(s.archivesDir(source), 0o755); err != nil {
		return blzerrors.NewIoError("mkdir", s.archivesDir(source), err)
	}
	return nil
}

// WriteSource persists raw bytes, the parsed document, and metadata
// for a source. Per spec §4.2, the three files are written via
// write-to-temp-then-rename, committed in the order
// llms.txt -> llms.json -> metadata.json: a crash mid-sequence leaves
// either the prior consistent state (nothing renamed yet) or bytes
// present with stale/absent parsed state, which a caller can always
// regenerate by re-parsing llms.txt. The caller must hold the
// source's SourceLock.
func (s *Store) WriteSource(source string, raw []byte, parsed *types.ParsedDocument, meta *types.SourceMetadata) error {
	dir := s.SourceDir(source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return blzerrors.NewIoError("mkdir", dir, err)
	}

	if err := writeFileAtomic(s.rawPath(source), raw); err != nil {
		return blzerrors.NewIoError("write", s.rawPath(source), err)
	}

	parsedJSON, err := json.MarshalIndent(parsed, "", jsonIndent)
	if err != nil {
		return blzerrors.NewIoError("marshal", s.parsedPath(source), err)
	}
	if err := writeFileAtomic(s.parsedPath(source), parsedJSON); err != nil {
		return blzerrors.NewIoError("write", s.parsedPath(source), err)
	}

	metaJSON, err := json.MarshalIndent(meta, "", jsonIndent)
	if err != nil {
		return blzerrors.NewIoError("marshal", s.metaPath(source), err)
	}
	if err := writeFileAtomic(s.metaPath(source), metaJSON); err != nil {
		return blzerrors.NewIoError("write", s.metaPath(source), err)
	}

	return nil
}

// WriteMetadataOnly rewrites just metadata.json, used by the
// NotModified path (spec §4.5 step 3: "refresh fetched_at only") and
// by alias mutation.
func (s *Store) WriteMetadataOnly(source string, meta *types.SourceMetadata) error {
	metaJSON, err := json.MarshalIndent(meta, "", jsonIndent)
	if err != nil {
		return blzerrors.NewIoError("marshal", s.metaPath(source), err)
	}
	if err := writeFileAtomic(s.metaPath(source), metaJSON); err != nil {
		return blzerrors.NewIoError("write", s.metaPath(source), err)
	}
	return nil
}

// xxhashIndexFile records a per-source map of xxhash digest -> archive
// filename, letting ArchiveCurrent reject duplicate content with one
// cheap 64-bit hash lookup instead of re-hashing every prior archive
// with SHA-256 on each update (spec §9 "content-addressed archives").
const xxhashIndexFile = ".xxhash-index.json"

func loadXXHashIndex(archDir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(archDir, xxhashIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, blzerrors.NewIoError("read", archDir, err)
	}
	idx := map[string]string{}
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, blzerrors.NewIoError("unmarshal", archDir, err)
	}
	return idx, nil
}

func saveXXHashIndex(archDir string, idx map[string]string) error {
	data, err := json.MarshalIndent(idx, "", jsonIndent)
	if err != nil {
		return blzerrors.NewIoError("marshal", archDir, err)
	}
	return writeFileAtomic(filepath.Join(archDir, xxhashIndexFile), data)
}

// ArchiveCurrent moves the current llms.txt into archives/ before a
// new one is written. A fast xxhash pre-check (spec §11 domain stack)
// finds a candidate already-archived fetch without touching SHA-256,
// and a byte-for-byte comparison with that archive confirms it before
// archiving is skipped; the archive filename itself still embeds the
// fetch timestamp and a SHA-256 prefix (spec §3 "Archive"), so the
// identity check never depends on xxhash alone.
func (s *Store) ArchiveCurrent(source string, fetchedAt time.Time, sha256Hex string) error {
	rawPath := s.rawPath(source)
	data, err := os.ReadFile(rawPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to archive yet (first add)
		}
		return blzerrors.NewIoError("read", rawPath, err)
	}

	archDir := s.archivesDir(source)
	if err := os.MkdirAll(archDir, 0o755); err != nil {
		return blzerrors.NewIoError("mkdir", archDir, err)
	}

	idx, err := loadXXHashIndex(archDir)
	if err != nil {
		return err
	}
	digest := strconv.FormatUint(xxhash.Sum64(data), 16)
	if existing, ok := idx[digest]; ok {
		existingData, readErr := os.ReadFile(filepath.Join(archDir, existing))
		if readErr == nil && bytes.Equal(existingData, data) {
			return nil // xxhash hit confirmed byte-for-byte: already archived
		}
	}

	prefix := sha256Hex
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	name := fetchedAt.UTC().Format("20060102T150405Z") + "-" + prefix + ".txt"
	dest := filepath.Join(archDir, name)

	if _, err := os.Stat(dest); err == nil {
		return nil // identical content already archived; de-duplicated by name
	}

	if err := os.Rename(rawPath, dest); err != nil {
		return blzerrors.NewIoError("rename", dest, err)
	}

	idx[digest] = name
	return saveXXHashIndex(archDir, idx)
}

// ListSources scans the data root, ignoring entries lacking
// metadata.json.
func (s *Store) ListSources() ([]string, error) {
	entries, err := os.ReadDir(s.dataRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, blzerrors.NewIoError("readdir", s.dataRoot, err)
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if s.Exists(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListSourcesMatching returns every registered source whose identifier
// matches pattern (doublestar glob syntax, e.g. "react-*" or
// "*-docs"), for CLI/MCP collaborators that want a filtered directory
// scan instead of the full list (spec §11 domain stack).
func (s *Store) ListSourcesMatching(pattern string) ([]string, error) {
	all, err := s.ListSources()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, src := range all {
		ok, err := doublestar.Match(pattern, src)
		if err != nil {
			return nil, blzerrors.NewInvalidError("pattern", pattern, err.Error())
		}
		if ok {
			out = append(out, src)
		}
	}
	return out, nil
}

// Resolve matches name case-insensitively against every source's
// canonical identifier and its aliases. Alias uniqueness is enforced
// on alias-add (pkg/blz Engine.AliasAdd), so ambiguity cannot occur here.
func (s *Store) Resolve(name string) (string, error) {
	lower := types.NormalizeAlias(name)

	sources, err := s.ListSources()
	if err != nil {
		return "", err
	}
	for _, src := range sources {
		if types.NormalizeAlias(src) == lower {
			return src, nil
		}
		meta, err := s.LoadMetadata(src)
		if err != nil {
			continue
		}
		for _, alias := range meta.Aliases {
			if types.NormalizeAlias(alias) == lower {
				return src, nil
			}
		}
	}
	return "", blzerrors.NewNotFoundError(name)
}

// Remove deletes a source's directory. The caller must hold the
// source's SourceLock; Remove itself does not take it so that the
// pipeline can remove the lock file as part of the same directory
// deletion.
func (s *Store) Remove(source string) error {
	dir := s.SourceDir(source)
	if err := os.RemoveAll(dir); err != nil {
		return blzerrors.NewIoError("remove", dir, err)
	}
	return nil
}

// LoadMetadata reads metadata.json for a source.
func (s *Store) LoadMetadata(source string) (*types.SourceMetadata, error) {
	data, err := os.ReadFile(s.metaPath(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blzerrors.NewNotFoundError(source)
		}
		return nil, blzerrors.NewIoError("read", s.metaPath(source), err)
	}
	var m types.SourceMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, blzerrors.NewIoError("unmarshal", s.metaPath(source), err)
	}
	return &m, nil
}

// LoadParsed reads llms.json for a source. If it is missing (e.g. a
// crash left raw bytes but no parsed state, per WriteSource's
// ordering guarantee), callers are expected to re-parse ReadRaw's
// output rather than treat this as fatal.
func (s *Store) LoadParsed(source string) (*types.ParsedDocument, error) {
	data, err := os.ReadFile(s.parsedPath(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blzerrors.NewNotFoundError(source)
		}
		return nil, blzerrors.NewIoError("read", s.parsedPath(source), err)
	}
	var doc types.ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, blzerrors.NewIoError("unmarshal", s.parsedPath(source), err)
	}
	return &doc, nil
}

// ReadRaw reads llms.txt for a source, byte-exact.
func (s *Store) ReadRaw(source string) ([]byte, error) {
	data, err := os.ReadFile(s.rawPath(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blzerrors.NewNotFoundError(source)
		}
		return nil, blzerrors.NewIoError("read", s.rawPath(source), err)
	}
	return data, nil
}

// ListArchives returns archive filenames for a source, oldest first.
func (s *Store) ListArchives(source string) ([]string, error) {
	entries, err := os.ReadDir(s.archivesDir(source))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, blzerrors.NewIoError("readdir", s.archivesDir(source), err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && e.Name() != xxhashIndexFile {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// SHA256Hex computes the hex-encoded SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// ValidateName checks a proposed identifier/alias against the
// reserved-character and length rules (spec §4.2 "Validation"),
// dispatching to the stricter canonical-identifier rule or the looser
// alias rule.
func ValidateName(name string, isAlias bool) error {
	ok := types.ValidateIdentifier(name)
	if isAlias {
		ok = types.ValidateAlias(name)
	}
	if !ok {
		return blzerrors.NewInvalidError("name", name, "must be a filesystem-safe identifier")
	}
	return nil
}
