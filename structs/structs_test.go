package structs

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/turbologger/table"
)

type pose struct{ X, Y float64 }

type poseStruct struct{ layout string }

func (p poseStruct) TypeName() string { return "Pose" }
func (p poseStruct) Layout() string   { return p.layout }
func (p poseStruct) Size() int        { return 16 }

func (p poseStruct) Pack(v pose) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:], math.Float64bits(v.X))
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(v.Y))
	return b
}

func (p poseStruct) Unpack(b []byte) (pose, error) {
	if len(b) != 16 {
		return pose{}, fmt.Errorf("%w: got %d", ErrSize, len(b))
	}
	return pose{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
	}, nil
}

// selfDescribed carries its own descriptor.
type selfDescribed struct{ V float64 }

type selfStruct struct{}

func (selfStruct) TypeName() string { return "Self" }
func (selfStruct) Layout() string   { return "double v" }
func (selfStruct) Size() int        { return 8 }
func (selfStruct) Pack(v selfDescribed) []byte {
	return binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.V))
}
func (selfStruct) Unpack(b []byte) (selfDescribed, error) {
	return selfDescribed{V: math.Float64frombits(binary.LittleEndian.Uint64(b))}, nil
}

func (selfDescribed) StructDescriptor() Struct[selfDescribed] { return selfStruct{} }

func TestRegister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, Register[pose](r, poseStruct{layout: "double x;double y"}))
	assert.Equal(t, 1, r.Len())

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, Register[pose](r, poseStruct{layout: "double x;double y"}))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("conflict", func(t *testing.T) {
		err := Register[pose](r, poseStruct{layout: "double y;double x"})
		assert.ErrorIs(t, err, ErrConflictingRegistration)
	})

	t.Run("nil", func(t *testing.T) {
		assert.ErrorIs(t, Register[pose](r, nil), ErrNilStruct)
	})
}

func TestLookup(t *testing.T) {
	r := NewRegistry()
	_, ok := Lookup[pose](r)
	assert.False(t, ok)

	require.NoError(t, Register[pose](r, poseStruct{layout: "double x;double y"}))
	s, ok := Lookup[pose](r)
	require.True(t, ok)
	assert.Equal(t, "Pose", s.TypeName())

	_, ok = Lookup[pose](nil)
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()

	t.Run("missing", func(t *testing.T) {
		_, err := Resolve(r, pose{})
		assert.ErrorIs(t, err, ErrMissingStrategy)
	})

	t.Run("registered", func(t *testing.T) {
		require.NoError(t, Register[pose](r, poseStruct{layout: "double x;double y"}))
		s, err := Resolve(r, pose{})
		require.NoError(t, err)
		assert.Equal(t, table.StructType("Pose", "double x;double y", false), Type(s, false))
	})

	t.Run("self described without registry", func(t *testing.T) {
		s, err := Resolve[selfDescribed](nil, selfDescribed{})
		require.NoError(t, err)
		assert.Equal(t, "Self", s.TypeName())
	})
}

func TestPackArray(t *testing.T) {
	s := poseStruct{layout: "double x;double y"}
	in := []pose{{1, 2}, {3, 4}, {5, 6}}

	b := PackArray[pose](s, in)
	assert.Len(t, b, 48)

	out, err := UnpackArray[pose](s, b)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = UnpackArray[pose](s, b[:20])
	assert.ErrorIs(t, err, ErrSize)

	empty, err := UnpackArray[pose](s, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, Register[pose](r, poseStruct{layout: "double x;double y"}))
			_, ok := Lookup[pose](r)
			assert.True(t, ok)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}
