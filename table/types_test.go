package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_String(t *testing.T) {
	tests := []struct {
		typ      Type
		expected string
	}{
		{Boolean, "boolean"},
		{Integer, "int"},
		{Double, "double"},
		{Float, "float"},
		{String, "string"},
		{DoubleArray, "double[]"},
		{StringArray, "string[]"},
		{StructType("Pose2d", "double x;double y", false), "struct:Pose2d"},
		{StructType("Pose2d", "double x;double y", true), "struct:Pose2d[]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.typ.String())

			parsed, err := ParseType(tt.typ.String(), tt.typ.Layout)
			require.NoError(t, err)
			assert.Equal(t, tt.typ, parsed)
		})
	}
}

func TestParseType_Invalid(t *testing.T) {
	for _, s := range []string{"", "long", "struct:", "struct:[]", "raw"} {
		_, err := ParseType(s, "")
		assert.Error(t, err, "input %q", s)
	}
}

func TestType_Equality(t *testing.T) {
	a := StructType("Pose2d", "double x;double y", false)
	b := StructType("Pose2d", "double x;double y;double rot", false)

	assert.NotEqual(t, a, b, "layout is part of the identity")
	assert.NotEqual(t, Double, DoubleArray)
	assert.Equal(t, Double, Type{Kind: KindDouble})
}

func TestType_Check(t *testing.T) {
	assert.NoError(t, Integer.Check(int64(3)))
	assert.ErrorIs(t, Integer.Check(3), ErrInvalidValue)
	assert.NoError(t, FloatArray.Check([]float32{1}))
	assert.ErrorIs(t, FloatArray.Check([]float64{1}), ErrInvalidValue)
	assert.NoError(t, StructType("X", "", true).Check([]byte{1, 2}))

	for _, typ := range []Type{Boolean, Integer, Double, Float, String, BooleanArray, IntegerArray,
		DoubleArray, FloatArray, StringArray, StructType("X", "", false)} {
		assert.NoError(t, typ.Check(typ.Zero()), typ.String())
	}
}

func TestCopy(t *testing.T) {
	src := []float64{1, 2, 3}
	dst := Copy(src).([]float64)
	dst[0] = 42

	assert.Equal(t, 1.0, src[0])
	assert.Equal(t, "x", Copy("x"))
}
