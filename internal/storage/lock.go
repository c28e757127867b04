package storage

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/outfitter-dev/blz/internal/blzerrors"
)

// inProcessLocks serializes writers to the same source within one
// process (spec §5: "an in-process lock keyed on the canonical source
// identifier"). The advisory lock file below additionally protects
// against a second process, but readers never take either lock.
type inProcessLocks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

func newInProcessLocks() *inProcessLocks {
	return &inProcessLocks{perID: make(map[string]*sync.Mutex)}
}

func (l *inProcessLocks) get(source string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.perID[source]
	if !ok {
		m = &sync.Mutex{}
		l.perID[source] = m
	}
	return m
}

// SourceLock is held during write_source, archive_current, and
// remove. Readers never take it.
type SourceLock struct {
	source   string
	lockPath string
	procMu   *sync.Mutex
	acquired bool
}

// Lock acquires the per-source lock: first the in-process mutex, then
// an advisory file lock (llms.json.lock) created with O_EXCL so a
// second process sees a Conflict rather than silently racing the
// rename sequence in WriteSource.
func (s *Store) Lock(source string) (*SourceLock, error) {
	procMu := s.locks.get(source)
	procMu.Lock()

	lockPath := filepath.Join(s.SourceDir(source), "llms.json.lock")
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		procMu.Unlock()
		return nil, blzerrors.NewIoError("mkdir", filepath.Dir(lockPath), err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		procMu.Unlock()
		if os.IsExist(err) {
			return nil, blzerrors.NewConflictError(source)
		}
		return nil, blzerrors.NewIoError("lock", lockPath, err)
	}
	_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	_ = f.Close()

	return &SourceLock{source: source, lockPath: lockPath, procMu: procMu, acquired: true}, nil
}

// Unlock releases both the file lock and the in-process mutex. It is
// safe to call once; a second call is a no-op.
func (l *SourceLock) Unlock() {
	if l == nil || !l.acquired {
		return
	}
	l.acquired = false
	_ = os.Remove(l.lockPath)
	l.procMu.Unlock()
}
