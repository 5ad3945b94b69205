// Package notelog stores notes in a bounded persistent log that is appended
// while recording and replayed in a loop.
//
// Layout:
//
//	[0,2)          write cursor header
//	[2, MaxAddr)   10-byte note records
package notelog

import (
	"errors"
	"fmt"

	"github.com/chase3718/lou-looper/internal/note"
)

const (
	// FirstAddr is the address of the first record, just past the header.
	FirstAddr = 2
	// DefaultMaxAddr is the size of the address space.
	DefaultMaxAddr = 1024
)

var (
	// ErrExhausted is returned when a record does not fit in the remaining space.
	ErrExhausted = errors.New("storage exhausted")
	// ErrCursorInvalid is returned when the persisted header cannot be a write cursor.
	ErrCursorInvalid = errors.New("storage cursor invalid")
)

// Log is the persistent note log. The write cursor is persisted in the
// header; the read cursor lives only as long as the Log.
type Log struct {
	storage Storage
	maxAddr uint16

	writeCursor uint16
	readCursor  uint16
}

// Open recovers the write cursor from storage. A header below FirstAddr marks
// storage that was never initialised and is reset to an empty log. A header
// at or past maxAddr, or one that does not sit on a record boundary, fails
// with ErrCursorInvalid. A log that filled the address space exactly
// therefore cannot be reopened until it is erased.
func Open(s Storage, maxAddr uint16) (*Log, error) {
	if maxAddr == 0 {
		maxAddr = DefaultMaxAddr
	}
	if maxAddr < FirstAddr {
		return nil, fmt.Errorf("notelog: address space of %d bytes has no room for the header", maxAddr)
	}
	l := &Log{storage: s, maxAddr: maxAddr, readCursor: FirstAddr}

	hdr, err := l.readWord(0)
	if err != nil {
		return nil, fmt.Errorf("notelog: read header: %w", err)
	}
	switch {
	case hdr < FirstAddr:
		if err := l.ResetWriteAddr(); err != nil {
			return nil, err
		}
	case hdr >= maxAddr || (hdr-FirstAddr)%note.RecordSize != 0:
		return nil, fmt.Errorf("notelog: header holds %d, max %d: %w", hdr, maxAddr, ErrCursorInvalid)
	default:
		l.writeCursor = hdr
	}
	return l, nil
}

// WriteNote appends n. Nothing is written if n does not fit. The header is
// updated only after the whole record is in place.
func (l *Log) WriteNote(n note.Note) error {
	if int(l.writeCursor)+note.RecordSize > int(l.maxAddr) {
		return fmt.Errorf("notelog: write at %d, max %d: %w", l.writeCursor, l.maxAddr, ErrExhausted)
	}
	if err := n.Validate(); err != nil {
		return fmt.Errorf("notelog: %w", err)
	}
	rec, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := l.storage.WriteAt(rec, int64(l.writeCursor)); err != nil {
		return fmt.Errorf("notelog: write record at %d: %w", l.writeCursor, err)
	}
	next := l.writeCursor + note.RecordSize
	if err := l.writeWord(0, next); err != nil {
		return fmt.Errorf("notelog: write header: %w", err)
	}
	l.writeCursor = next
	return nil
}

// ReadNote returns the note at the read cursor and advances it. Once the
// cursor has caught up with the write cursor it wraps to the oldest record,
// so repeated calls loop over everything recorded.
func (l *Log) ReadNote() (note.Note, error) {
	if l.readCursor >= l.writeCursor {
		l.ResetReadAddr()
	}
	n, err := l.readAt(l.readCursor)
	if err != nil {
		return note.Note{}, err
	}
	l.readCursor += note.RecordSize
	return n, nil
}

// ResetWriteAddr empties the log and persists the new header immediately.
// Older records become unreachable.
func (l *Log) ResetWriteAddr() error {
	if err := l.writeWord(0, FirstAddr); err != nil {
		return fmt.Errorf("notelog: write header: %w", err)
	}
	l.writeCursor = FirstAddr
	return nil
}

// ResetReadAddr rewinds playback to the oldest record.
func (l *Log) ResetReadAddr() {
	l.readCursor = FirstAddr
}

// IsFirstWrite reports whether the log is empty.
func (l *Log) IsFirstWrite() bool {
	return l.writeCursor == FirstAddr
}

// IsLastRead reports whether the next ReadNote will wrap.
func (l *Log) IsLastRead() bool {
	return l.readCursor == l.writeCursor
}

// WriteCursor returns the next free address.
func (l *Log) WriteCursor() uint16 { return l.writeCursor }

// ReadCursor returns the address of the next record to replay.
func (l *Log) ReadCursor() uint16 { return l.readCursor }

// Len returns the number of stored notes.
func (l *Log) Len() int {
	return int(l.writeCursor-FirstAddr) / note.RecordSize
}

// Capacity returns how many notes the address space can hold.
func (l *Log) Capacity() int {
	return int(l.maxAddr-FirstAddr) / note.RecordSize
}

// Notes returns every stored note, oldest first, without moving the read cursor.
func (l *Log) Notes() ([]note.Note, error) {
	out := make([]note.Note, 0, l.Len())
	for addr := uint16(FirstAddr); addr < l.writeCursor; addr += note.RecordSize {
		n, err := l.readAt(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (l *Log) readAt(addr uint16) (note.Note, error) {
	rec := make([]byte, note.RecordSize)
	if _, err := l.storage.ReadAt(rec, int64(addr)); err != nil {
		return note.Note{}, fmt.Errorf("notelog: read record at %d: %w", addr, err)
	}
	var n note.Note
	if err := n.UnmarshalBinary(rec); err != nil {
		return note.Note{}, err
	}
	if err := n.Validate(); err != nil {
		return note.Note{}, fmt.Errorf("notelog: record at %d: %w", addr, err)
	}
	return n, nil
}

func (l *Log) readWord(addr int64) (uint16, error) {
	var w [2]byte
	if _, err := l.storage.ReadAt(w[:], addr); err != nil {
		return 0, err
	}
	return note.ByteOrder.Uint16(w[:]), nil
}

func (l *Log) writeWord(addr int64, v uint16) error {
	var w [2]byte
	note.ByteOrder.PutUint16(w[:], v)
	_, err := l.storage.WriteAt(w[:], addr)
	return err
}
