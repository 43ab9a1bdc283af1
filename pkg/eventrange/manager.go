package eventrange

import "fmt"

// unknownSize marks a file whose total event count has not been
// discovered yet.
const unknownSize = -1

// NoPreference tells Consume to pick whichever file is most deserving
// rather than favouring one the caller already has an affinity for.
const NoPreference = ^uint32(0)

// Range identifies a half-open span of events within one file of a
// dataset.
type Range struct {
	FileIndex uint32
	First     uint64
	Last      uint64
}

type fileState struct {
	knownSize  int64 // -1 == unknown
	eventsLeft IndexRanges
}

// Manager hands out Ranges for one dataset's files, tracks what is left,
// and accepts previously-handed-out ranges back for re-assignment after a
// worker failure.
//
// The first range ever produced for a file is always exactly blockSize0
// wide, regardless of the hint passed to Consume; this lets the caller
// start work on a file before its total size is known. Once a file's true
// size is reported via SetFileSize, the remainder of the file becomes
// available in ranges sized by Consume's hint.
type Manager struct {
	blockSize0 uint64
	files      []fileState
}

// NewManager creates a Manager for nfiles files, each initialised with a
// first block of width blockSize0 and an unknown total size.
func NewManager(nfiles int, blockSize0 uint64) *Manager {
	m := &Manager{blockSize0: blockSize0, files: make([]fileState, nfiles)}
	for i := range m.files {
		m.files[i].knownSize = unknownSize
		m.files[i].eventsLeft = NewIndexRanges(0, blockSize0)
	}
	return m
}

// NumFiles returns the total number of files in this dataset.
func (m *Manager) NumFiles() int {
	return len(m.files)
}

// Available reports whether any file still has events left to hand out.
func (m *Manager) Available() bool {
	for i := range m.files {
		if !m.files[i].eventsLeft.Empty() {
			return true
		}
	}
	return false
}

// Consume selects a file and returns the next Range to work on.
//
// Selection order:
//  1. preferredFile, if it still has events left (pass NoPreference to
//     skip this step);
//  2. any file whose size is still unknown, or whose known size equals
//     exactly what remains (i.e. it has never been touched);
//  3. any file with a non-empty remainder.
//
// hintSize bounds the width of the returned range, except that the first
// range ever consumed from a file is always exactly blockSize0 wide.
// Consume panics if nothing is available; callers must check Available
// first.
func (m *Manager) Consume(preferredFile uint32, hintSize uint64) Range {
	if hintSize == 0 {
		hintSize = m.blockSize0
	}
	fi, ok := m.pickFile(preferredFile)
	if !ok {
		panic("eventrange: Consume called with nothing available")
	}
	f := &m.files[fi]
	useBlockSize0 := f.eventsLeft.Peek().Low == 0
	maxSize := hintSize
	if useBlockSize0 {
		maxSize = m.blockSize0
	}
	iv := f.eventsLeft.ConsumeFront(maxSize)
	return Range{FileIndex: fi, First: iv.Low, Last: iv.High}
}

func (m *Manager) pickFile(preferredFile uint32) (uint32, bool) {
	if preferredFile != NoPreference && int(preferredFile) < len(m.files) && !m.files[preferredFile].eventsLeft.Empty() {
		return preferredFile, true
	}
	for i := range m.files {
		if m.files[i].eventsLeft.Empty() {
			continue
		}
		if m.files[i].knownSize < 0 || uint64(m.files[i].knownSize) == m.files[i].eventsLeft.Size() {
			return uint32(i), true
		}
	}
	for i := range m.files {
		if !m.files[i].eventsLeft.Empty() {
			return uint32(i), true
		}
	}
	return 0, false
}

// SetFileSize records the true event count of a file the first time it is
// discovered. If n is larger than blockSize0, the remainder [blockSize0, n)
// becomes available. Calling it again with the same n is a no-op; calling
// it with a different n is a contract violation.
func (m *Manager) SetFileSize(fileIndex uint32, n uint64) {
	f := &m.files[fileIndex]
	if f.knownSize >= 0 {
		if uint64(f.knownSize) != n {
			panic(fmt.Sprintf("eventrange: inconsistent file size for file %d: had %d, got %d", fileIndex, f.knownSize, n))
		}
		return
	}
	f.knownSize = int64(n)
	if n > m.blockSize0 {
		f.eventsLeft.DisjointUnion(NewIndexRanges(m.blockSize0, n))
	}
}

// Add returns a previously consumed Range to the pool, for re-assignment
// after a worker failure. It is valid even for the [0, blockSize0) range
// of a file whose size is still unknown.
func (m *Manager) Add(r Range) {
	f := &m.files[r.FileIndex]
	isFirstBlock := r.First == 0 && r.Last == m.blockSize0
	if !isFirstBlock && (f.knownSize < 0 || r.Last > uint64(f.knownSize)) {
		panic(fmt.Sprintf("eventrange: Add called with range beyond known file size: file=%d [%d,%d) knownSize=%d", r.FileIndex, r.First, r.Last, f.knownSize))
	}
	f.eventsLeft.DisjointUnion(NewIndexRanges(r.First, r.Last))
}

// EventsLeft returns the total number of events not yet handed out (or
// handed back through Add) across all files.
func (m *Manager) EventsLeft() uint64 {
	var total uint64
	for i := range m.files {
		total += m.files[i].eventsLeft.Size()
	}
	return total
}

// FilesDone returns the number of files whose size is known and which
// have nothing left to hand out.
func (m *Manager) FilesDone() int {
	var n int
	for i := range m.files {
		if m.files[i].knownSize >= 0 && m.files[i].eventsLeft.Empty() {
			n++
		}
	}
	return n
}

// EventsTotal returns the sum of known file sizes, counting any file whose
// size is still unknown as blockSize0. The sign bit (encoded by
// returning a negative number) indicates that the total is not yet fully
// known: negate the result to recover the magnitude.
func (m *Manager) EventsTotal() int64 {
	var total int64
	complete := true
	for i := range m.files {
		if m.files[i].knownSize >= 0 {
			total += m.files[i].knownSize
		} else {
			total += int64(m.blockSize0)
			complete = false
		}
	}
	if !complete {
		return -total
	}
	return total
}
