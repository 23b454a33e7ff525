// Package structs describes how user record types are laid out on the
// shared table.
//
// A record type travels as a fixed-size byte block. Its Struct descriptor
// names the type, publishes a layout signature (for example
// "double x;double y;double rot") and packs and unpacks values. Two
// topics carry the same record type only when both the name and the layout
// agree.
//
// Descriptors are found through an explicit capability, never by scanning
// fields at runtime: either the record type implements Serializable, or
// its descriptor was registered in a Registry keyed by the Go type.
package structs

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/c360/turbologger/table"
)

var (
	// ErrMissingStrategy is returned when no descriptor exists for a type.
	ErrMissingStrategy = errors.New("structs: no struct descriptor for type")
	// ErrNilStruct is returned when registering a nil descriptor.
	ErrNilStruct = errors.New("structs: nil struct descriptor")
	// ErrConflictingRegistration indicates an attempt to register a second,
	// different descriptor for the same type.
	ErrConflictingRegistration = errors.New("structs: conflicting struct registration")
	// ErrSize is returned when packed data does not match the layout size.
	ErrSize = errors.New("structs: packed size mismatch")
)

// Struct packs and unpacks values of one record type.
type Struct[T any] interface {
	// TypeName is the record name used in the topic type, e.g. "Pose2d".
	TypeName() string
	// Layout is the field layout signature.
	Layout() string
	// Size is the packed size of one value in bytes.
	Size() int
	Pack(v T) []byte
	Unpack(b []byte) (T, error)
}

// Serializable is implemented by record types that carry their own
// descriptor. The method must work on the zero value.
type Serializable[T any] interface {
	StructDescriptor() Struct[T]
}

// Type returns the table type for s.
func Type[T any](s Struct[T], array bool) table.Type {
	return table.StructType(s.TypeName(), s.Layout(), array)
}

// PackArray packs values back to back.
func PackArray[T any](s Struct[T], values []T) []byte {
	out := make([]byte, 0, len(values)*s.Size())
	for _, v := range values {
		out = append(out, s.Pack(v)...)
	}
	return out
}

// UnpackArray splits b into Size-byte blocks and unpacks each.
func UnpackArray[T any](s Struct[T], b []byte) ([]T, error) {
	size := s.Size()
	if size <= 0 || len(b)%size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %s size %d", ErrSize, len(b), s.TypeName(), size)
	}
	out := make([]T, 0, len(b)/size)
	for off := 0; off < len(b); off += size {
		v, err := s.Unpack(b[off : off+size])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Registry maps Go types to their descriptors. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[reflect.Type]registered
}

type registered struct {
	desc   any // Struct[T] for the key type
	name   string
	layout string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[reflect.Type]registered)}
}

// Register records s as the descriptor for T. Registering an equivalent
// descriptor again (same name and layout) is a no-op.
func Register[T any](r *Registry, s Struct[T]) error {
	if s == nil {
		return ErrNilStruct
	}
	key := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.m[key]; ok {
		if old.name == s.TypeName() && old.layout == s.Layout() {
			return nil
		}
		return fmt.Errorf("%w: %s already registered as %s", ErrConflictingRegistration, key, old.name)
	}
	r.m[key] = registered{desc: s, name: s.TypeName(), layout: s.Layout()}
	return nil
}

// Lookup returns the descriptor registered for T.
func Lookup[T any](r *Registry) (Struct[T], bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	entry, ok := r.m[reflect.TypeFor[T]()]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	s, ok := entry.desc.(Struct[T])
	return s, ok
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Resolve finds the descriptor for v: the type's own StructDescriptor
// first, then the registry.
func Resolve[T any](r *Registry, v T) (Struct[T], error) {
	if ser, ok := any(v).(Serializable[T]); ok {
		if s := ser.StructDescriptor(); s != nil {
			return s, nil
		}
	}
	if s, ok := Lookup[T](r); ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w %s", ErrMissingStrategy, reflect.TypeFor[T]())
}
