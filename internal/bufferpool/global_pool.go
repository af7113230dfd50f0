package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/tuannm99/novasql/internal"
	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/pkg/elrux"
)

// maxUsageCount caps Frame.UsageCount, matching Postgres's own
// BM_MAX_USAGE_COUNT: a frame's usage tier only needs to distinguish
// "recently touched" from "not", so the counter never has to grow without
// bound.
var maxUsageCount int32 = 5

// ErrUnsupportedFileSet is returned when GlobalPool cannot work with a FileSet implementation.
var ErrUnsupportedFileSet = errors.New("bufferpool: unsupported FileSet (global pool requires LocalFileSet)")

// PageTag uniquely identifies a page in the global pool.
type PageTag struct {
	FSKey  string
	PageID uint32
}

// GlobalPool is a single shared buffer pool for ALL relations (heap/index/ovf).
// It mimics PostgreSQL shared_buffers at a high level, replacing frames
// chosen by an ELRU engine (pkg/elrux) instead of CLOCK.
//
// GlobalPool.mu serializes everything: the page table, every Frame's
// Pin/UsageCount/Tag/Page fields, and doubles as the "descriptor header
// lock" spec.md's acquisition protocol expects an external collaborator to
// provide. There is no separate shared-memory descriptor array in this
// single-process port, so one mutex plays both roles, exactly as the
// teacher's original GlobalPool already held a single mutex across its own
// GetPage body (including disk I/O).
type GlobalPool struct {
	sm *storage.StorageManager

	mu     sync.Mutex
	frames []*Frame        // len == capacity; entries always non-nil once NewGlobalPool returns
	table  map[PageTag]int // (fsKey,pageID) -> frame index

	engine   *elrux.Engine
	bgwriter *BgWriterRegistry

	// ringBudgetKB holds operator overrides (internal.ElruConfig) for each
	// ring kind's kilobyte budget; zero fields fall back to pkg/elrux's
	// spec-mandated defaults.
	ringBudgetKB struct {
		bulkRead, bulkWrite, vacuum int
	}
}

// Frame is stored in global frames[].
// NOTE: FS is required to flush/evict correctly.
type Frame struct {
	Tag   PageTag
	FS    storage.LocalFileSet
	Page  *storage.Page
	Dirty bool
	Pin   int32
	Valid bool // false until the frame has held a real page at least once

	// UsageCount is the ELRU engine's DescriptorTable.UsageCount, read and
	// written only under GlobalPool.mu.
	UsageCount int32
}

func NewGlobalPool(sm *storage.StorageManager, capacity int) *GlobalPool {
	return NewGlobalPoolWithConfig(sm, capacity, internal.ElruConfig{})
}

// NewGlobalPoolWithConfig is NewGlobalPool with operator overrides for pool
// capacity and ring kilobyte budgets (internal.ElruConfig, loaded from the
// YAML "elru" section). cfg.PoolCapacity is used when capacity <= 0. Zero
// fields keep DefaultCapacity and pkg/elrux's spec-mandated defaults.
func NewGlobalPoolWithConfig(sm *storage.StorageManager, capacity int, cfg internal.ElruConfig) *GlobalPool {
	if capacity <= 0 {
		capacity = cfg.PoolCapacity
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	g := &GlobalPool{
		sm:       sm,
		frames:   make([]*Frame, capacity),
		table:    make(map[PageTag]int),
		engine:   elrux.NewEngine(capacity, elrux.NewClock()),
		bgwriter: NewBgWriterRegistry(),
	}
	g.bgwriter.attach(g.engine)
	g.ringBudgetKB.bulkRead = cfg.RingBulkReadKB
	g.ringBudgetKB.bulkWrite = cfg.RingBulkWriteKB
	g.ringBudgetKB.vacuum = cfg.RingVacuumKB

	for i := range g.frames {
		g.frames[i] = &Frame{}
	}
	for i := 0; i < capacity; i++ {
		// ReleaseFrame pushes i onto the free list; the ELRU list side of
		// the call is a no-op since i was never touched.
		_ = g.engine.ReleaseFrame(i)
	}
	return g
}

// LockHeader and UnlockHeader satisfy elrux.DescriptorTable, taking and
// releasing g.mu themselves: the engine calls LockHeader once per candidate
// and either calls UnlockHeader right back (candidate rejected) or leaves it
// locked for the caller of AcquireFrame to unlock once its own bookkeeping
// is done (candidate chosen). g.mu is never held by the caller across the
// AcquireFrame call itself.
func (g *GlobalPool) LockHeader(id int) elrux.DescriptorState {
	g.mu.Lock()
	f := g.frames[id]
	return elrux.DescriptorState{Refcount: f.Pin, UsageCount: f.UsageCount}
}

func (g *GlobalPool) UnlockHeader(id int, state elrux.DescriptorState) {
	f := g.frames[id]
	f.Pin = state.Refcount
	f.UsageCount = state.UsageCount
	g.mu.Unlock()
}

// BgWriter returns the registry a background writer goroutine registers
// against before waiting on its wake channel.
func (g *GlobalPool) BgWriter() *BgWriterRegistry {
	return g.bgwriter
}

// NotifyBgWriter arms a pending wakeup for writerID, delivered on the next
// GetPage/GetPageWithStrategy call that reaches the free-list or ELRU path.
func (g *GlobalPool) NotifyBgWriter(writerID int) {
	g.engine.NotifyBgWriter(writerID)
}

// GetPage pins and returns the page (fs,pageID).
func (g *GlobalPool) GetPage(fs storage.FileSet, pageID uint32) (*storage.Page, error) {
	return g.getPage(fs, pageID, nil)
}

// GetPageWithStrategy is GetPage for a caller running a bulk operation
// (sequential scan, COPY, VACUUM) that wants its working set bounded to a
// ring instead of polluting the whole ELRU list (spec.md §3 "Ring Strategy").
func (g *GlobalPool) GetPageWithStrategy(fs storage.FileSet, pageID uint32, h *RingHandle) (*storage.Page, error) {
	return g.getPage(fs, pageID, h)
}

func (g *GlobalPool) getPage(fs storage.FileSet, pageID uint32, h *RingHandle) (*storage.Page, error) {
	key, lfs, ok := storage.FsKeyOf(fs)
	if !ok {
		return nil, ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: pageID}

	g.mu.Lock()
	if idx, ok := g.table[tag]; ok {
		f := g.frames[idx]
		f.Pin++
		if f.UsageCount < maxUsageCount {
			f.UsageCount++
		}
		page := f.Page
		g.mu.Unlock()

		if err := g.engine.Touch(idx); err != nil {
			slog.Error(logDebugPrefix+"Touch failed on cache hit", "pageID", pageID, "frameIdx", idx, "err", err)
		}
		return page, nil
	}
	g.mu.Unlock()

	id, fromRing, err := g.engine.AcquireFrame(h.elruRing(), g)
	if err != nil {
		if errors.Is(err, elrux.ErrNoUnpinnedBuffer) {
			return nil, ErrNoFreeFrame
		}
		return nil, err
	}
	// g.mu is held here: AcquireFrame's winning LockHeader call locked it
	// and left it locked for us to finish the handshake.

	f := g.frames[id]
	oldTag, wasValid, wasDirty := f.Tag, f.Valid, f.Dirty
	oldFS, oldPage := f.FS, f.Page

	if wasValid && wasDirty {
		if err := g.sm.SavePage(oldFS, oldTag.PageID, *oldPage); err != nil {
			f.Pin = 0
			g.mu.Unlock()
			_ = g.engine.ReleaseFrame(id)
			return nil, fmt.Errorf("flush victim frame %d: %w", id, err)
		}
	}

	newPage, err := g.sm.LoadPage(lfs, pageID)
	if err != nil {
		f.Pin = 0
		g.mu.Unlock()
		_ = g.engine.ReleaseFrame(id)
		return nil, err
	}

	if wasValid {
		delete(g.table, oldTag)
	}
	f.Tag = tag
	f.FS = lfs
	f.Page = newPage
	f.Dirty = false
	f.Valid = true
	f.Pin = 1
	f.UsageCount = 1
	g.table[tag] = id
	g.mu.Unlock()

	h.noteAcquired(id, fromRing)

	slog.Debug(logDebugPrefix+"acquired frame",
		"pageID", pageID, "frameIdx", id, "fromRing", fromRing)
	return newPage, nil
}

// Unpin decreases pin count and marks dirty optionally.
func (g *GlobalPool) Unpin(fs storage.FileSet, page *storage.Page, dirty bool) error {
	return g.unpin(fs, page, dirty, nil)
}

// UnpinWithStrategy is Unpin for a page acquired via GetPageWithStrategy,
// so a dirty ring-served buffer can be rejected from ring reuse.
func (g *GlobalPool) UnpinWithStrategy(fs storage.FileSet, page *storage.Page, dirty bool, h *RingHandle) error {
	return g.unpin(fs, page, dirty, h)
}

func (g *GlobalPool) unpin(fs storage.FileSet, page *storage.Page, dirty bool, h *RingHandle) error {
	if page == nil {
		return nil
	}
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}
	tag := PageTag{FSKey: key, PageID: page.PageID()}

	g.mu.Lock()
	idx, ok := g.table[tag]
	if !ok {
		g.mu.Unlock()
		return nil
	}
	f := g.frames[idx]
	if dirty {
		f.Dirty = true
	}
	if f.Pin > 0 {
		f.Pin--
	}
	g.mu.Unlock()

	h.noteReleased(idx, dirty)
	return nil
}

// FlushAll flushes all dirty pages in the global pool, accumulating every
// per-frame I/O failure with multierr rather than stopping at the first one.
func (g *GlobalPool) FlushAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	var errs error
	for _, f := range g.frames {
		if !f.Valid || !f.Dirty {
			continue
		}
		if err := g.sm.SavePage(f.FS, f.Tag.PageID, *f.Page); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush page %d: %w", f.Tag.PageID, err))
			continue
		}
		f.Dirty = false
	}
	return errs
}

// FlushFileSet flushes dirty pages belonging to a single relation (FileSet).
func (g *GlobalPool) FlushFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var errs error
	for _, f := range g.frames {
		if !f.Valid || !f.Dirty || f.Tag.FSKey != key {
			continue
		}
		if err := g.sm.SavePage(f.FS, f.Tag.PageID, *f.Page); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush page %d: %w", f.Tag.PageID, err))
			continue
		}
		f.Dirty = false
	}
	return errs
}

// DropFileSet removes ALL pages of a relation from the global pool.
//
// IMPORTANT: This must be called before deleting/renaming underlying files.
// If any page is pinned, ErrPagePinned is returned.
func (g *GlobalPool) DropFileSet(fs storage.FileSet) error {
	key, _, ok := storage.FsKeyOf(fs)
	if !ok {
		return ErrUnsupportedFileSet
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, f := range g.frames {
		if f.Valid && f.Tag.FSKey == key && f.Pin != 0 {
			return ErrPagePinned
		}
	}

	var errs error
	for i, f := range g.frames {
		if !f.Valid || f.Tag.FSKey != key {
			continue
		}
		if f.Dirty {
			if err := g.sm.SavePage(f.FS, f.Tag.PageID, *f.Page); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("flush page %d: %w", f.Tag.PageID, err))
				continue
			}
		}
		delete(g.table, f.Tag)
		*f = Frame{}
		if err := g.engine.ReleaseFrame(i); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
