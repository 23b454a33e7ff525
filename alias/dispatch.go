package alias

import (
	"errors"
	"fmt"
	"math"

	"github.com/c360/turbologger/table"
)

// write registers inline aliases, then publishes v to name's canonical
// path as typ and marks the path and its aliases dirty.
//
// An inline alias already pointing at the canonical path is skipped, so a
// write inside a loop can repeat its aliases. Other alias failures are
// reported and returned but do not stop the write.
func (s *Store) write(name string, typ table.Type, v any, aliases []string) error {
	var (
		diags []Diagnostic
		errs  []error
	)

	s.mu.Lock()
	path := s.resolve(name)
	for _, a := range aliases {
		if s.aliasToPath[a] == path {
			continue
		}
		if err := s.registerAlias(path, a); err != nil {
			diags = append(diags, warnDiag(a, path, err))
			errs = append(errs, err)
		}
	}

	err := s.publish(name, path, typ, v)
	if err == nil {
		s.markWritten(path)
	}
	s.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrTypeMismatch) {
			diags = append(diags, warnDiag(name, path, err))
		} else {
			diags = append(diags, errorDiag(name, path, err))
		}
		errs = append(errs, err)
	} else if s.metrics != nil {
		s.metrics.RecordWrite(typ.String())
	}
	s.emit(diags...)

	return errors.Join(errs...)
}

// publish pushes v through the channel of path. Caller holds mu.
func (s *Store) publish(name, path string, typ table.Type, v any) error {
	ch, _, err := s.getOrCreate(name, path, typ)
	if err != nil {
		return err
	}
	pub, err := s.publisher(name, path, ch)
	if err != nil {
		return err
	}
	return pub.Set(table.Copy(v))
}

// read returns the current value of name as typ and marks name observed.
// It returns false when the access was rejected or nothing was published
// yet; the first read of a path without data reports ErrNoData.
func (s *Store) read(name string, typ table.Type) (any, bool) {
	s.mu.Lock()
	path := s.resolve(name)
	ch, created, err := s.getOrCreate(name, path, typ)
	if err != nil {
		s.mu.Unlock()
		s.emit(warnDiag(name, path, err))
		return nil, false
	}

	s.markRead(name)
	var v any
	hasData := ch.sub.LastChange() != 0
	if hasData {
		v = table.Copy(ch.sub.Get())
	}
	s.mu.Unlock()

	if !hasData {
		if created {
			s.emit(warnDiag(name, path, fmt.Errorf("%w for %q", ErrNoData, name)))
		}
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.RecordRead(typ.String())
	}
	return v, true
}

func readAs[T any](s *Store, name string, typ table.Type, def T) T {
	v, ok := s.read(name, typ)
	if !ok {
		return def
	}
	out, ok := v.(T)
	if !ok {
		return def
	}
	return out
}

func clampInt32(v int64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	default:
		return int32(v)
	}
}

// WriteBoolean publishes v under name, registering any inline aliases first.
func (s *Store) WriteBoolean(name string, v bool, aliases ...string) error {
	return s.write(name, table.Boolean, v, aliases)
}

// WriteInteger publishes v under name, registering any inline aliases first.
func (s *Store) WriteInteger(name string, v int64, aliases ...string) error {
	return s.write(name, table.Integer, v, aliases)
}

// WriteDouble publishes v under name, registering any inline aliases first.
func (s *Store) WriteDouble(name string, v float64, aliases ...string) error {
	return s.write(name, table.Double, v, aliases)
}

// WriteFloat publishes v under name, registering any inline aliases first.
func (s *Store) WriteFloat(name string, v float32, aliases ...string) error {
	return s.write(name, table.Float, v, aliases)
}

// WriteString publishes v under name, registering any inline aliases first.
func (s *Store) WriteString(name string, v string, aliases ...string) error {
	return s.write(name, table.String, v, aliases)
}

// WriteBooleanArray publishes a copy of v under name.
func (s *Store) WriteBooleanArray(name string, v []bool, aliases ...string) error {
	return s.write(name, table.BooleanArray, v, aliases)
}

// WriteIntegerArray publishes a copy of v under name.
func (s *Store) WriteIntegerArray(name string, v []int64, aliases ...string) error {
	return s.write(name, table.IntegerArray, v, aliases)
}

// WriteDoubleArray publishes a copy of v under name.
func (s *Store) WriteDoubleArray(name string, v []float64, aliases ...string) error {
	return s.write(name, table.DoubleArray, v, aliases)
}

// WriteFloatArray publishes a copy of v under name.
func (s *Store) WriteFloatArray(name string, v []float32, aliases ...string) error {
	return s.write(name, table.FloatArray, v, aliases)
}

// WriteStringArray publishes a copy of v under name.
func (s *Store) WriteStringArray(name string, v []string, aliases ...string) error {
	return s.write(name, table.StringArray, v, aliases)
}

// ReadBoolean returns the value under name, or def if it can not be read.
func (s *Store) ReadBoolean(name string, def bool) bool {
	return readAs(s, name, table.Boolean, def)
}

// ReadInteger returns the value under name clamped to the int32 range, or
// def if it can not be read.
func (s *Store) ReadInteger(name string, def int32) int32 {
	v, ok := s.read(name, table.Integer)
	if !ok {
		return def
	}
	n, ok := v.(int64)
	if !ok {
		return def
	}
	return clampInt32(n)
}

// ReadDouble returns the value under name, or def if it can not be read.
func (s *Store) ReadDouble(name string, def float64) float64 {
	return readAs(s, name, table.Double, def)
}

// ReadFloat returns the value under name, or def if it can not be read.
func (s *Store) ReadFloat(name string, def float32) float32 {
	return readAs(s, name, table.Float, def)
}

// ReadString returns the value under name, or def if it can not be read.
func (s *Store) ReadString(name string, def string) string {
	return readAs(s, name, table.String, def)
}

// ReadBooleanArray returns a copy of the value under name, or def.
func (s *Store) ReadBooleanArray(name string, def []bool) []bool {
	return readAs(s, name, table.BooleanArray, def)
}

// ReadIntegerArray returns the value under name with each element clamped
// to the int32 range, or def.
func (s *Store) ReadIntegerArray(name string, def []int32) []int32 {
	v, ok := s.read(name, table.IntegerArray)
	if !ok {
		return def
	}
	ns, ok := v.([]int64)
	if !ok {
		return def
	}
	out := make([]int32, len(ns))
	for i, n := range ns {
		out[i] = clampInt32(n)
	}
	return out
}

// ReadDoubleArray returns a copy of the value under name, or def.
func (s *Store) ReadDoubleArray(name string, def []float64) []float64 {
	return readAs(s, name, table.DoubleArray, def)
}

// ReadFloatArray returns a copy of the value under name, or def.
func (s *Store) ReadFloatArray(name string, def []float32) []float32 {
	return readAs(s, name, table.FloatArray, def)
}

// ReadStringArray returns a copy of the value under name, or def.
func (s *Store) ReadStringArray(name string, def []string) []string {
	return readAs(s, name, table.StringArray, def)
}
