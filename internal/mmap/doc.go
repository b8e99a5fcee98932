// Package mmap maps dataset files read-only into memory.
//
// # Usage
//
//	m, err := mmap.Open("points.rtnn")
//	if err != nil { ... }
//	defer m.Close()
//
//	_ = m.Advise(mmap.AccessSequential)
//	payload := m.Bytes()[16:]
//
// Unix systems use mmap(2) with madvise(2). Windows uses
// CreateFileMapping/MapViewOfFile and ignores access hints.
//
// A Mapping may be read from many goroutines. Close is idempotent, but no
// goroutine may touch a slice returned by Bytes after Close returns.
package mmap
