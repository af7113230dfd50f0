package bufferpool

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/tuannm99/novasql/internal/storage"
	"github.com/tuannm99/novasql/pkg/elrux"
)

var (
	logDebugPrefix  = "bufferpool: "
	DefaultCapacity = 128

	// ErrNoFreeFrame is returned when no unpinned frame is available for replacement.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrPagePinned is returned when trying to evict/delete a pinned page.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// Manager is a simple buffer pool interface for table-level usage.
type Manager interface {
	// GetPage returns a page from the buffer pool (pin count is increased).
	GetPage(pageID uint32) (*storage.Page, error)

	// Unpin decreases pin count and marks the page dirty if needed.
	Unpin(page *storage.Page, dirty bool) error

	// FlushAll flushes all dirty pages to disk.
	FlushAll() error
}

var _ Manager = (*Pool)(nil)

// Pool is a simple fixed-size buffer pool bound to one FileSet, replacing
// frames via its own private ELRU engine when full.
type Pool struct {
	sm *storage.StorageManager
	fs storage.FileSet

	mu        sync.Mutex
	frames    []*poolFrame   // fixed-size slice, len == capacity
	pageTable map[uint32]int // PageID -> index in frames

	engine   *elrux.Engine
	bgwriter *BgWriterRegistry
}

// poolFrame holds a single page and its metadata inside the buffer pool.
type poolFrame struct {
	PageID uint32
	Page   *storage.Page
	Dirty  bool
	Pin    int32
	Valid  bool

	// UsageCount is the ELRU engine's DescriptorTable.UsageCount, read and
	// written only under Pool.mu.
	UsageCount int32
}

// NewPool creates a new buffer pool with the given capacity.
// If capacity <= 0, a small default capacity is used.
func NewPool(sm *storage.StorageManager, fs storage.FileSet, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 16 // default small capacity
	}
	p := &Pool{
		sm:        sm,
		fs:        fs,
		frames:    make([]*poolFrame, capacity),
		pageTable: make(map[uint32]int),
		engine:    elrux.NewEngine(capacity, elrux.NewClock()),
		bgwriter:  NewBgWriterRegistry(),
	}
	p.bgwriter.attach(p.engine)
	for i := range p.frames {
		p.frames[i] = &poolFrame{}
	}
	for i := 0; i < capacity; i++ {
		_ = p.engine.ReleaseFrame(i)
	}
	return p
}

// capacity is kept as a reader for tests that peeked at the old CLOCK-era
// p.capacity field.
func (p *Pool) capacity() int { return len(p.frames) }

// LockHeader and UnlockHeader satisfy elrux.DescriptorTable, taking and
// releasing p.mu themselves: see GlobalPool's identical pattern in
// global_pool.go for why the caller never holds p.mu across AcquireFrame.
func (p *Pool) LockHeader(id int) elrux.DescriptorState {
	p.mu.Lock()
	f := p.frames[id]
	return elrux.DescriptorState{Refcount: f.Pin, UsageCount: f.UsageCount}
}

func (p *Pool) UnlockHeader(id int, state elrux.DescriptorState) {
	f := p.frames[id]
	f.Pin = state.Refcount
	f.UsageCount = state.UsageCount
	p.mu.Unlock()
}

// BgWriter returns the registry a background writer goroutine registers
// against before waiting on its wake channel.
func (p *Pool) BgWriter() *BgWriterRegistry {
	return p.bgwriter
}

// NotifyBgWriter arms a pending wakeup for writerID, delivered on the next
// GetPage call that reaches the free-list or ELRU path.
func (p *Pool) NotifyBgWriter(writerID int) {
	p.engine.NotifyBgWriter(writerID)
}

// GetPage returns a page from buffer pool and increases its pin count.
// If the page does not exist in memory, it will be loaded from disk.
// Replacement policy for a full pool uses the ELRU engine (pkg/elrux).
func (p *Pool) GetPage(pageID uint32) (*storage.Page, error) {
	p.mu.Lock()

	slog.Debug(logDebugPrefix+"GetPage called", "pageID", pageID)

	if idx, ok := p.pageTable[pageID]; ok {
		f := p.frames[idx]
		f.Pin++
		if f.UsageCount < maxUsageCount {
			f.UsageCount++
		}
		page := f.Page
		p.mu.Unlock()

		if err := p.engine.Touch(idx); err != nil {
			slog.Error(logDebugPrefix+"Touch failed on cache hit", "pageID", pageID, "frameIdx", idx, "err", err)
		}
		slog.Debug(logDebugPrefix+"found page in buffer", "pageID", pageID, "frameIdx", idx, "framePin", f.Pin)
		return page, nil
	}
	p.mu.Unlock()

	id, _, err := p.engine.AcquireFrame(nil, p)
	if err != nil {
		if errors.Is(err, elrux.ErrNoUnpinnedBuffer) {
			return nil, ErrNoFreeFrame
		}
		return nil, err
	}
	// p.mu is held here, left locked by AcquireFrame's winning LockHeader call.

	f := p.frames[id]
	wasValid, wasDirty := f.Valid, f.Dirty
	oldPageID, oldPage := f.PageID, f.Page

	if wasValid && wasDirty {
		if err := p.sm.SavePage(p.fs, oldPageID, *oldPage); err != nil {
			f.Pin = 0
			p.mu.Unlock()
			_ = p.engine.ReleaseFrame(id)
			return nil, err
		}
	}

	page, err := p.sm.LoadPage(p.fs, pageID)
	if err != nil {
		f.Pin = 0
		p.mu.Unlock()
		_ = p.engine.ReleaseFrame(id)
		return nil, err
	}

	if wasValid {
		delete(p.pageTable, oldPageID)
	}
	f.PageID = pageID
	f.Page = page
	f.Dirty = false
	f.Valid = true
	f.Pin = 1
	f.UsageCount = 1
	p.pageTable[pageID] = id
	p.mu.Unlock()

	slog.Debug(logDebugPrefix+"acquired frame for page", "pageID", pageID, "frameIdx", id, "framePin", f.Pin)
	return page, nil
}

// Unpin decreases the pin count of a page and marks it dirty if needed.
func (p *Pool) Unpin(page *storage.Page, dirty bool) error {
	if page == nil {
		return nil
	}

	pageID := page.PageID()

	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		slog.Debug(logDebugPrefix+"Unpin ignored, page not in pool", "pageID", pageID)
		return nil
	}

	f := p.frames[idx]
	if dirty {
		f.Dirty = true
	}
	if f.Pin > 0 {
		f.Pin--
	}

	slog.Debug(logDebugPrefix+"Unpin", "pageID", pageID, "frameIdx", idx, "dirty", f.Dirty, "newPin", f.Pin)
	return nil
}

// FlushAll flushes all dirty frames to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	slog.Debug(logDebugPrefix + "FlushAll started")

	for idx, f := range p.frames {
		if !f.Valid || !f.Dirty {
			continue
		}
		slog.Debug(logDebugPrefix+"flushing frame", "pageID", f.PageID, "frameIdx", idx)
		if err := p.sm.SavePage(p.fs, f.PageID, *f.Page); err != nil {
			return err
		}
		f.Dirty = false
	}

	slog.Debug(logDebugPrefix + "FlushAll completed")
	return nil
}

// DeletePageFromBuffer removes a page from the buffer pool (buffer only, not disk).
// It will fail if the page is currently pinned.
func (p *Pool) DeletePageFromBuffer(pageID uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pageID]
	if !ok {
		slog.Debug(logDebugPrefix+"DeletePageFromBuffer: page not in pool", "pageID", pageID)
		return nil
	}

	f := p.frames[idx]
	if f.Pin != 0 {
		slog.Debug(logDebugPrefix+"DeletePageFromBuffer: page is pinned", "pageID", pageID, "frameIdx", idx, "pin", f.Pin)
		return ErrPagePinned
	}

	if f.Dirty {
		slog.Debug(logDebugPrefix+"DeletePageFromBuffer: flushing dirty page before remove", "pageID", pageID)
		if err := p.sm.SavePage(p.fs, f.PageID, *f.Page); err != nil {
			return err
		}
	}

	slog.Debug(logDebugPrefix+"DeletePageFromBuffer: freeing frame", "pageID", pageID, "frameIdx", idx)

	delete(p.pageTable, pageID)
	*f = poolFrame{}
	return p.engine.ReleaseFrame(idx)
}
