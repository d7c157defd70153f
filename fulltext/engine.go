package fulltext

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Engine state constants for the writer/reader exclusion gate.
const (
	stateAll    = 0 // readers and writers allowed
	stateWrite  = 1 // a writer holds the engine exclusively
	stateClosed = 2
)

// Config configures a newly-opened Engine.
type Config struct {
	Algorithm int // term/key hash algorithm, defaults to AlgXXHash3
}

// Engine is the full-text search engine bound to one index's on-disk
// file. It is the concrete stand-in for the external "full-text search
// library" collaborator: the index package reaches it only through
// IndexPersistence (OpenWriter, OpenReader, RecreateSearcher,
// EntriesCount, Compact, Close).
type Engine struct {
	dir      string // temp dir to remove on Close, set only in memory-only mode
	memOnly  bool
	name     string
	reader   *os.File
	writer   *os.File
	lock     *fileLock
	header   *Header
	config   Config
	tail     int64
	state    atomic.Int32
	cond     *sync.Cond
	mu       sync.RWMutex
	searcher atomic.Pointer[Searcher]
}

// Open opens or creates the engine's backing file. memOnly directs Open
// to create the file in a private temp directory that is removed on
// Close, giving the "fresh state on the next Open" semantics an
// in-memory storage environment needs.
func Open(dir, name string, memOnly bool, cfg Config) (*Engine, error) {
	if cfg.Algorithm == 0 {
		cfg.Algorithm = AlgXXHash3
	}

	var tmpDir string
	if memOnly {
		var err error
		tmpDir, err = os.MkdirTemp("", "indexcore-fulltext-*")
		if err != nil {
			return nil, err
		}
		dir = tmpDir
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		if tmpDir != "" {
			os.RemoveAll(tmpDir)
		}
		return nil, err
	}
	path := filepath.Join(dir, name)

	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		hdr := Header{Version: 1, Algorithm: cfg.Algorithm, Timestamp: nowMillis()}
		buf, _ := hdr.encode()
		f.Write(buf)
		f.Sync()
		f.Close()
	}

	reader, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	writer, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		reader.Close()
		return nil, err
	}

	info, _ := writer.Stat()
	hdr, err := readHeader(reader)
	if err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}

	e := &Engine{
		dir:     tmpDir,
		memOnly: memOnly,
		name:    name,
		reader:  reader,
		writer:  writer,
		lock:    &fileLock{f: writer},
		header:  hdr,
		config:  cfg,
		tail:    info.Size(),
		cond:    sync.NewCond(&sync.Mutex{}),
	}

	if err := e.rebuild(); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}

	return e, nil
}

// Close closes the engine and, in memory-only mode, removes the backing
// temp directory so the next Open starts from a clean slate.
func (e *Engine) Close() error {
	e.cond.L.Lock()
	e.state.Store(stateClosed)
	e.cond.Broadcast()
	e.cond.L.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.lock != nil {
		e.lock.Unlock()
	}

	if e.header.Dirty == 1 {
		e.header.Dirty = 0
		setDirty(e.writer, false)
		e.writer.Sync()
	}

	var firstErr error
	if err := e.reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.writer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.memOnly && e.dir != "" {
		os.RemoveAll(e.dir)
	}
	return firstErr
}

// blockWrite gates exclusive access to the writer for the duration of a
// batch, built on a sync.Cond-guarded state machine.
func (e *Engine) blockWrite() error {
	if e.state.Load() == stateClosed {
		return ErrClosed
	}
	if err := e.lock.Lock(LockExclusive); err != nil {
		return err
	}

	e.cond.L.Lock()
	for e.state.Load() != stateAll {
		if e.state.Load() == stateClosed {
			e.cond.L.Unlock()
			e.lock.Unlock()
			return ErrClosed
		}
		e.cond.Wait()
	}
	e.state.Store(stateWrite)
	e.mu.Lock()
	e.cond.L.Unlock()
	return nil
}

func (e *Engine) unblockWrite() {
	e.mu.Unlock()
	e.cond.L.Lock()
	e.state.Store(stateAll)
	e.cond.Broadcast()
	e.cond.L.Unlock()
	e.lock.Unlock()
}

func (e *Engine) blockRead() error {
	if e.state.Load() == stateClosed {
		return ErrClosed
	}
	if err := e.lock.Lock(LockShared); err != nil {
		return err
	}
	e.mu.RLock()
	return nil
}

func (e *Engine) unblockRead() {
	e.mu.RUnlock()
	e.lock.Unlock()
}
