// Package elrux implements the ELRU (Early-LRU / second-chance-by-recency)
// buffer replacement engine: a variant of LRU keyed on a frame's
// second-most-recent access time rather than its most recent one. Frames
// touched only once are preferred eviction victims over frames touched at
// least twice.
//
// The engine is a fixed-size, process-wide structure over frame ids in
// [0, N). It has no notion of pages, files, or I/O; it composes an ordered
// list (the ELRU stack), a free-frame stack, and a per-requester ring
// strategy into one acquisition protocol. Callers supply a DescriptorTable
// to let the engine observe pin/usage state without owning it.
package elrux
