package phi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmanationsDescendFromPhi(t *testing.T) {
	assert.InDelta(t, Matter, Agnosis+Psyche, 1e-12)
	assert.InDelta(t, 1.0, Psyche+Matter, 1e-12)
	assert.InDelta(t, Phi, 1+Matter, 1e-12)
	assert.Equal(t, Phi, Being)

	assert.Less(t, Agnosis, Psyche)
	assert.Less(t, Psyche, Neutral)
	assert.Less(t, Neutral, Matter)
}
