package notelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// Storage is a byte-addressable persistent memory.
type Storage interface {
	io.ReaderAt
	io.WriterAt
}

// MemoryStorage is a Storage held in RAM. A new one reads as all zeros.
type MemoryStorage struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemoryStorage returns a zero-filled storage of size bytes.
func NewMemoryStorage(size int) *MemoryStorage {
	return &MemoryStorage{buf: make([]byte, size)}
}

// ReadAt implements io.ReaderAt.
func (m *MemoryStorage) ReadAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, fmt.Errorf("memory storage: read %d bytes at %d: %w", len(p), off, io.ErrUnexpectedEOF)
	}
	return copy(p, m.buf[off:]), nil
}

// WriteAt implements io.WriterAt.
func (m *MemoryStorage) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if off < 0 || off+int64(len(p)) > int64(len(m.buf)) {
		return 0, fmt.Errorf("memory storage: write %d bytes at %d: %w", len(p), off, io.ErrShortWrite)
	}
	return copy(m.buf[off:], p), nil
}

// Bytes returns a copy of the whole image.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.buf...)
}

// FileStorage keeps the log in a fixed-size image file. Every write is
// synced before it returns so a header update never lands ahead of its record.
type FileStorage struct {
	f *os.File
}

// OpenFileStorage opens the image at path, creating a zero-filled image of
// size bytes if it does not exist yet.
func OpenFileStorage(path string, size int) (*FileStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file storage: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("file storage: %w", err)
	}
	if info.Size() < int64(size) {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("file storage: grow image: %w", err)
		}
	}
	return &FileStorage{f: f}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileStorage) ReadAt(p []byte, off int64) (int, error) {
	n, err := s.f.ReadAt(p, off)
	if errors.Is(err, io.EOF) && n == len(p) {
		err = nil
	}
	return n, err
}

// WriteAt implements io.WriterAt.
func (s *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	if err != nil {
		return n, err
	}
	return n, s.f.Sync()
}

// Close closes the image file.
func (s *FileStorage) Close() error {
	return s.f.Close()
}
