package entropy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsReproducible(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestDeriveStableAndDistinct(t *testing.T) {
	assert.Equal(t, Derive(7, "mara"), Derive(7, "mara"))
	assert.NotEqual(t, Derive(7, "mara"), Derive(7, "tobin"))
	assert.NotEqual(t, Derive(7, "mara"), Derive(8, "mara"))
	assert.GreaterOrEqual(t, Derive(-3, "x"), int64(0))
}

func TestResolveSeed(t *testing.T) {
	assert.Equal(t, int64(99), ResolveSeed(99))
	assert.NotZero(t, ResolveSeed(0))
}

func TestSequenceCycles(t *testing.T) {
	s := NewSequence(0.1, 0.9)
	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 0.9, s.Float64())
	assert.Equal(t, 0.1, s.Float64())

	empty := NewSequence()
	assert.Equal(t, 0.0, empty.Float64())
}
