//go:build unix

package mmarena

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Map returns an anonymous private read-write mapping of size bytes. The
// mapping is page-aligned and lives outside the Go heap.
func Map(size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmarena: mmap %d bytes: %w", size, err)
	}
	cleanup := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		data = nil
		return err
	}
	return data, cleanup, nil
}
