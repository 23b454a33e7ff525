package alias

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/turbologger/table"
)

func TestDispatch_ScalarRoundTrip(t *testing.T) {
	s, _, rec := newTestStore(t)

	require.NoError(t, s.WriteBoolean("b", true))
	require.NoError(t, s.WriteInteger("i", -42))
	require.NoError(t, s.WriteDouble("d", 2.5))
	require.NoError(t, s.WriteFloat("f", 1.25))
	require.NoError(t, s.WriteString("s", "hello"))

	assert.True(t, s.ReadBoolean("b", false))
	assert.Equal(t, int32(-42), s.ReadInteger("i", 0))
	assert.Equal(t, 2.5, s.ReadDouble("d", 0))
	assert.Equal(t, float32(1.25), s.ReadFloat("f", 0))
	assert.Equal(t, "hello", s.ReadString("s", ""))
	assert.Empty(t, rec.all())
}

func TestDispatch_ArrayRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)

	require.NoError(t, s.WriteBooleanArray("b", []bool{true, false}))
	require.NoError(t, s.WriteIntegerArray("i", []int64{1, 2, 3}))
	require.NoError(t, s.WriteDoubleArray("d", []float64{0.5}))
	require.NoError(t, s.WriteFloatArray("f", []float32{1, 2}))
	require.NoError(t, s.WriteStringArray("s", []string{"a", "b"}))

	assert.Equal(t, []bool{true, false}, s.ReadBooleanArray("b", nil))
	assert.Equal(t, []int32{1, 2, 3}, s.ReadIntegerArray("i", nil))
	assert.Equal(t, []float64{0.5}, s.ReadDoubleArray("d", nil))
	assert.Equal(t, []float32{1, 2}, s.ReadFloatArray("f", nil))
	assert.Equal(t, []string{"a", "b"}, s.ReadStringArray("s", nil))
}

func TestDispatch_ArraysAreCopied(t *testing.T) {
	s, _, _ := newTestStore(t)

	in := []float64{1, 2, 3}
	require.NoError(t, s.WriteDoubleArray("d", in))
	in[0] = 100

	out := s.ReadDoubleArray("d", nil)
	assert.Equal(t, []float64{1, 2, 3}, out)
	out[1] = 200
	assert.Equal(t, []float64{1, 2, 3}, s.ReadDoubleArray("d", nil))
}

func TestDispatch_IntegerClamping(t *testing.T) {
	s, _, _ := newTestStore(t)

	tests := []struct {
		name string
		in   int64
		want int32
	}{
		{"above range", math.MaxInt32 + 1, math.MaxInt32},
		{"far above range", math.MaxInt64, math.MaxInt32},
		{"below range", math.MinInt32 - 1, math.MinInt32},
		{"far below range", math.MinInt64, math.MinInt32},
		{"max", math.MaxInt32, math.MaxInt32},
		{"min", math.MinInt32, math.MinInt32},
		{"zero", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.WriteInteger("n", tt.in))
			assert.Equal(t, tt.want, s.ReadInteger("n", 7))
		})
	}

	t.Run("array", func(t *testing.T) {
		require.NoError(t, s.WriteIntegerArray("ns", []int64{math.MaxInt64, -5, math.MinInt64}))
		assert.Equal(t, []int32{math.MaxInt32, -5, math.MinInt32}, s.ReadIntegerArray("ns", nil))
	})
}

func TestDispatch_TypeMismatchIsNonDestructive(t *testing.T) {
	s, _, rec := newTestStore(t)
	require.NoError(t, s.WriteString("p", "valid", "a"))
	before := s.ReadString("p", "")
	require.Equal(t, "valid", before)
	require.False(t, s.HasChanged("p"))

	err := s.WriteDouble("a", 3.14)
	require.ErrorIs(t, err, ErrTypeMismatch)

	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "a", tm.Name)
	assert.Equal(t, "p", tm.Path)
	assert.Equal(t, table.Double, tm.Requested)
	assert.Equal(t, table.String, tm.Bound)
	assert.Contains(t, err.Error(), `alias "a" of "p"`)

	assert.Equal(t, "valid", s.ReadString("p", "fallback"))
	assert.False(t, s.HasChanged("p"), "rejected write does not mark")

	// A rejected read returns the default and leaves the marker alone.
	require.NoError(t, s.WriteString("p", "newer"))
	assert.Equal(t, 9.0, s.ReadDouble("p", 9))
	assert.True(t, s.HasChanged("p"))

	diags := rec.all()
	require.Len(t, diags, 2)
	for _, d := range diags {
		assert.Equal(t, "type_mismatch", d.Condition())
		assert.Equal(t, SeverityWarning, d.Severity)
	}
}

func TestDispatch_ArrayAndScalarDiffer(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.WriteDouble("d", 1))
	assert.ErrorIs(t, s.WriteDoubleArray("d", []float64{1}), ErrTypeMismatch)
	assert.Equal(t, []float64{42}, s.ReadDoubleArray("d", []float64{42}))
}

func TestDispatch_TypeDeclaredByAnotherWriter(t *testing.T) {
	mem := table.NewMemory()
	first := New(mem, WithReporter(func(Diagnostic) {}))
	rec := &recorder{}
	second := New(mem, WithReporter(rec.report))

	require.NoError(t, first.WriteDouble("shared", 1.5))

	assert.ErrorIs(t, second.WriteString("shared", "x"), ErrTypeMismatch)
	assert.Equal(t, "d", second.ReadString("shared", "d"))
	assert.Equal(t, 1.5, second.ReadDouble("shared", 0))
	assert.Equal(t, []string{"type_mismatch", "type_mismatch"}, rec.conditions())
}

func TestDispatch_ReadBeforeWrite(t *testing.T) {
	s, _, rec := newTestStore(t)

	assert.Equal(t, 5.0, s.ReadDouble("later", 5))
	assert.Equal(t, 6.0, s.ReadDouble("later", 6))
	assert.Equal(t, []string{"no_data"}, rec.conditions(), "reported once per channel")

	// The read bound the path.
	assert.ErrorIs(t, s.WriteString("later", "x"), ErrTypeMismatch)

	require.NoError(t, s.WriteDouble("later", 1))
	assert.True(t, s.HasChanged("later"))
	assert.Equal(t, 1.0, s.ReadDouble("later", 5))
}

func TestDispatch_InlineAliases(t *testing.T) {
	s, _, rec := newTestStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.WriteDouble("motors/m1/voltage", float64(i), "m1v", "volts"))
	}
	assert.Equal(t, []string{"m1v", "volts"}, s.Aliases("motors/m1/voltage"))
	assert.Equal(t, 2.0, s.ReadDouble("volts", 0))
	assert.Empty(t, rec.all())

	t.Run("collision does not stop the write", func(t *testing.T) {
		require.NoError(t, s.WriteDouble("other", 1))
		err := s.WriteDouble("motors/m1/voltage", 9, "other")
		assert.ErrorIs(t, err, ErrAliasCollision)
		assert.Equal(t, 9.0, s.ReadDouble("m1v", 0))
		assert.Equal(t, 1.0, s.ReadDouble("other", 0))
	})

	t.Run("alias of another path", func(t *testing.T) {
		err := s.WriteDouble("elsewhere", 1, "m1v")
		assert.ErrorIs(t, err, ErrAliasCollision)
		assert.Equal(t, "motors/m1/voltage", s.Resolve("m1v"))
	})
}

func TestDispatch_WriteThroughAliasMarksSiblings(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.WriteBoolean("enabled", false, "a", "b"))
	_ = s.ReadBoolean("a", true)
	_ = s.ReadBoolean("b", true)
	_ = s.ReadBoolean("enabled", true)

	require.NoError(t, s.WriteBoolean("a", true))

	for _, name := range []string{"enabled", "a", "b"} {
		assert.True(t, s.HasChanged(name), name)
	}
}
