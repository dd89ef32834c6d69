//go:build !linux

package barrier

import "context"

// Shared is unavailable outside Linux.
type Shared struct{}

// Create always fails with ErrUnsupported.
func Create(dir, name string, parties int) (*Shared, error) {
	return nil, &InitError{Name: name, Err: ErrUnsupported}
}

// Open always fails with ErrUnsupported.
func Open(dir, name string) (*Shared, error) {
	return nil, &InitError{Name: name, Err: ErrUnsupported}
}

// Remove is a no-op.
func Remove(dir, name string) error { return nil }

func (b *Shared) Name() string                    { return "" }
func (b *Shared) Parties() int                    { return 0 }
func (b *Shared) Arrived() int                    { return 0 }
func (b *Shared) Released() bool                  { return false }
func (b *Shared) Await(ctx context.Context) error { return ErrUnsupported }
func (b *Shared) Close() error                    { return nil }
