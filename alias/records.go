package alias

import (
	"github.com/c360/turbologger/structs"
)

// missing reports a record type without a descriptor and returns err.
func (s *Store) missing(name string, err error) error {
	s.emit(errorDiag(name, "", err))
	return err
}

// unpackFailed reports stored bytes that do not decode as the record.
func (s *Store) unpackFailed(name string, err error) {
	s.emit(errorDiag(name, s.Resolve(name), err))
}

// WriteStruct publishes v under name as a packed record. The descriptor
// is resolved before anything else, so a type without one fails with
// ErrMissingStrategy and neither touches the table nor registers aliases.
func WriteStruct[T any](s *Store, name string, v T, aliases ...string) error {
	desc, err := structs.Resolve(s.registry, v)
	if err != nil {
		return s.missing(name, err)
	}
	return s.write(name, structs.Type(desc, false), desc.Pack(v), aliases)
}

// WriteStructArray publishes values under name as packed records.
func WriteStructArray[T any](s *Store, name string, values []T, aliases ...string) error {
	var zero T
	desc, err := structs.Resolve(s.registry, zero)
	if err != nil {
		return s.missing(name, err)
	}
	return s.write(name, structs.Type(desc, true), structs.PackArray(desc, values), aliases)
}

// ReadStruct returns the record under name, or def if it can not be read.
func ReadStruct[T any](s *Store, name string, def T) T {
	desc, err := structs.Resolve(s.registry, def)
	if err != nil {
		_ = s.missing(name, err)
		return def
	}
	raw, ok := s.read(name, structs.Type(desc, false))
	if !ok {
		return def
	}
	b, _ := raw.([]byte)
	v, err := desc.Unpack(b)
	if err != nil {
		s.unpackFailed(name, err)
		return def
	}
	return v
}

// ReadStructArray returns the records under name, or def if they can not
// be read.
func ReadStructArray[T any](s *Store, name string, def []T) []T {
	var zero T
	desc, err := structs.Resolve(s.registry, zero)
	if err != nil {
		_ = s.missing(name, err)
		return def
	}
	raw, ok := s.read(name, structs.Type(desc, true))
	if !ok {
		return def
	}
	b, _ := raw.([]byte)
	values, err := structs.UnpackArray(desc, b)
	if err != nil {
		s.unpackFailed(name, err)
		return def
	}
	return values
}
