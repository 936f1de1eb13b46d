//go:build !unix

package mmarena

// Map falls back to a heap arena when anonymous mappings are not available.
func Map(size int) ([]byte, func() error, error) {
	return Heap(size)
}
