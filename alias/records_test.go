package alias

import (
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/turbologger/structs"
	"github.com/c360/turbologger/table"
)

// Pose2d carries its own descriptor.
type Pose2d struct {
	X, Y, Rot float64
}

type pose2dStruct struct{}

func (pose2dStruct) TypeName() string { return "Pose2d" }
func (pose2dStruct) Layout() string   { return "double x;double y;double rot" }
func (pose2dStruct) Size() int        { return 24 }

func (pose2dStruct) Pack(p Pose2d) []byte {
	b := make([]byte, 0, 24)
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.X))
	b = binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Y))
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(p.Rot))
}

func (pose2dStruct) Unpack(b []byte) (Pose2d, error) {
	if len(b) != 24 {
		return Pose2d{}, fmt.Errorf("%w: Pose2d needs 24 bytes, got %d", structs.ErrSize, len(b))
	}
	return Pose2d{
		X:   math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		Y:   math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
		Rot: math.Float64frombits(binary.LittleEndian.Uint64(b[16:])),
	}, nil
}

func (Pose2d) StructDescriptor() structs.Struct[Pose2d] { return pose2dStruct{} }

// Translation is described through a registry.
type Translation struct{ X, Y float64 }

type translationStruct struct{ layout string }

func (translationStruct) TypeName() string { return "Translation2d" }
func (t translationStruct) Layout() string { return t.layout }
func (translationStruct) Size() int        { return 16 }
func (translationStruct) Pack(v Translation) []byte {
	b := binary.LittleEndian.AppendUint64(nil, math.Float64bits(v.X))
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v.Y))
}
func (translationStruct) Unpack(b []byte) (Translation, error) {
	if len(b) != 16 {
		return Translation{}, structs.ErrSize
	}
	return Translation{
		X: math.Float64frombits(binary.LittleEndian.Uint64(b[0:])),
		Y: math.Float64frombits(binary.LittleEndian.Uint64(b[8:])),
	}, nil
}

// Unknown has no descriptor anywhere.
type Unknown struct{ V int }

func TestRecords_SerializableRoundTrip(t *testing.T) {
	s, mem, _ := newTestStore(t)
	pose := Pose2d{X: 1.5, Y: -2, Rot: math.Pi}

	require.NoError(t, WriteStruct(s, "drive/pose", pose, "pose"))
	assert.Equal(t, pose, ReadStruct(s, "pose", Pose2d{}))

	typ, ok := mem.Topic("drive/pose").Type()
	require.True(t, ok)
	assert.Equal(t, table.StructType("Pose2d", "double x;double y;double rot", false), typ)
	assert.Equal(t, "struct:Pose2d", typ.String())
}

func TestRecords_RegistryRoundTrip(t *testing.T) {
	registry := structs.NewRegistry()
	require.NoError(t, structs.Register[Translation](registry, translationStruct{layout: "double x;double y"}))
	s, _, _ := newTestStore(t, WithRegistry(registry))
	assert.Same(t, registry, s.Registry())

	in := []Translation{{1, 2}, {3, 4}}
	require.NoError(t, WriteStructArray(s, "path/points", in))
	assert.Equal(t, in, ReadStructArray(s, "path/points", []Translation(nil)))

	require.NoError(t, WriteStructArray(s, "path/points", []Translation{}))
	assert.Empty(t, ReadStructArray(s, "path/points", []Translation{{9, 9}}))
}

func TestRecords_MissingStrategyHasNoSideEffects(t *testing.T) {
	s, mem, rec := newTestStore(t)

	err := WriteStruct(s, "thing", Unknown{V: 1}, "t")
	require.ErrorIs(t, err, ErrMissingStrategy)
	assert.False(t, s.IsAlias("t"))
	assert.False(t, mem.Exists("thing"))
	assert.False(t, s.HasChanged("thing"))

	assert.ErrorIs(t, WriteStructArray(s, "things", []Unknown{{1}}), ErrMissingStrategy)
	assert.Equal(t, Unknown{V: 7}, ReadStruct(s, "thing", Unknown{V: 7}))
	assert.Equal(t, []Unknown{{8}}, ReadStructArray(s, "things", []Unknown{{8}}))

	// Reads without a descriptor do not bind the path either.
	require.NoError(t, s.WriteDouble("thing", 1))

	diags := rec.all()
	require.Len(t, diags, 4)
	for _, d := range diags {
		assert.Equal(t, SeverityError, d.Severity)
		assert.Equal(t, "missing_strategy", d.Condition())
	}
}

func TestRecords_LayoutMismatch(t *testing.T) {
	mem := table.NewMemory()

	oldRegistry := structs.NewRegistry()
	require.NoError(t, structs.Register[Translation](oldRegistry, translationStruct{layout: "double x;double y"}))
	newRegistry := structs.NewRegistry()
	require.NoError(t, structs.Register[Translation](newRegistry, translationStruct{layout: "double y;double x"}))

	writer := New(mem, WithRegistry(oldRegistry), WithReporter(func(Diagnostic) {}))
	rec := &recorder{}
	reader := New(mem, WithRegistry(newRegistry), WithReporter(rec.report))

	require.NoError(t, WriteStruct(writer, "t", Translation{1, 2}))

	// Same record name, different layout: rejected.
	assert.Equal(t, Translation{}, ReadStruct(reader, "t", Translation{}))
	assert.ErrorIs(t, WriteStruct(reader, "t", Translation{3, 4}), ErrTypeMismatch)
	assert.Equal(t, []string{"type_mismatch", "type_mismatch"}, rec.conditions())

	assert.Equal(t, Translation{1, 2}, ReadStruct(writer, "t", Translation{}))
}

func TestRecords_ScalarAndArrayDiffer(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, WriteStruct(s, "pose", Pose2d{X: 1}))
	assert.ErrorIs(t, WriteStructArray(s, "pose", []Pose2d{{X: 1}}), ErrTypeMismatch)
	assert.Equal(t, Pose2d{X: 1}, ReadStruct(s, "pose", Pose2d{}))
}
