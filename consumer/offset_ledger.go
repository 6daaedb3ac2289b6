package consumer

import (
	"sort"
	"sync"
)

// offsetRecord one cached queue offset and whether its consumption has
// concluded
type offsetRecord struct {
	offset  int64
	release bool
}

// offsetLedger tracks the consumption watermark of one partition in
// broadcasting mode, records are inserted when a message is cached and
// released when its consumption concludes, the released prefix defines
// the committable offset
type offsetLedger struct {
	mu      sync.RWMutex
	records []offsetRecord // ascending by offset, no duplicates
}

// add inserts the offset unreleased, a single fully released record
// left over as the committed watermark is rolled forward first
func (l *offsetLedger) add(offset int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == 1 && l.records[0].release {
		l.records = l.records[:0]
	}

	i := sort.Search(len(l.records), func(i int) bool { return l.records[i].offset >= offset })
	if i < len(l.records) && l.records[i].offset == offset {
		return
	}
	l.records = append(l.records, offsetRecord{})
	copy(l.records[i+1:], l.records[i:])
	l.records[i] = offsetRecord{offset: offset}
}

// release marks the record of the offset as concluded, unknown offsets
// are ignored
func (l *offsetLedger) release(offset int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := sort.Search(len(l.records), func(i int) bool { return l.records[i].offset >= offset })
	if i < len(l.records) && l.records[i].offset == offset {
		l.records[i].release = true
	}
}

// committedOffset compacts the released prefix down to its last record
// and returns the next offset to consume, ok is false while nothing is
// released yet
func (l *offsetLedger) committedOffset() (offset int64, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for n < len(l.records) && l.records[n].release {
		n++
	}
	if n == 0 {
		return 0, false
	}

	// keep the last released record as the lingering watermark
	l.records = l.records[n-1:]
	return l.records[0].offset + 1, true
}

func (l *offsetLedger) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
