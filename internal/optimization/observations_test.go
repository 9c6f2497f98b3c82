package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservationSetBestTracksMinimum(t *testing.T) {
	domain := Domain{Continuous("x", 0, 10)}
	set, err := NewObservationSet(domain, nil, nil)
	require.NoError(t, err)

	_, ok := set.Best()
	assert.False(t, ok, "empty set has no incumbent")

	values := []float64{3.0, -1.5, 2.0, -1.4, 7.0}
	for i, y := range values {
		set.Append([]float64{float64(i)}, y)

		best, ok := set.Best()
		require.True(t, ok)

		min := values[0]
		for _, v := range values[:i+1] {
			if v < min {
				min = v
			}
		}
		assert.Equal(t, min, best.Y, "incumbent must equal minimum after %d appends", i+1)
	}

	best, _ := set.Best()
	assert.Equal(t, []float64{1}, best.X)
}

func TestNewObservationSetValidation(t *testing.T) {
	domain := Domain{Continuous("x", 0, 1)}

	_, err := NewObservationSet(domain, [][]float64{{0.5}}, []float64{1, 2})
	var dataErr *DataError
	require.Error(t, err)
	assert.ErrorAs(t, err, &dataErr)

	_, err = NewObservationSet(domain, [][]float64{{0.5, 0.5}}, []float64{1})
	require.Error(t, err)
	assert.ErrorAs(t, err, &dataErr)
}

func TestObservationSetAppendCopiesPoint(t *testing.T) {
	domain := Domain{Continuous("x", 0, 1)}
	set, err := NewObservationSet(domain, nil, nil)
	require.NoError(t, err)

	x := []float64{0.25}
	set.Append(x, 1.0)
	x[0] = 0.75

	assert.Equal(t, 0.25, set.At(0).X[0], "stored point must not alias caller memory")
}

func TestContainsWithin(t *testing.T) {
	domain := Domain{Continuous("x", 0, 1), Continuous("y", 0, 1)}
	set, err := NewObservationSet(domain, [][]float64{{0.5, 0.5}}, []float64{1})
	require.NoError(t, err)

	assert.True(t, set.ContainsWithin([]float64{0.5, 0.5}, 1e-8))
	assert.True(t, set.ContainsWithin([]float64{0.5, 0.5 + 1e-9}, 1e-8))
	assert.False(t, set.ContainsWithin([]float64{0.6, 0.5}, 1e-8))
}

func TestWithinAnyAndMinDistance(t *testing.T) {
	pending := [][]float64{{0, 0}}
	ignored := [][]float64{{1, 1}}

	assert.True(t, WithinAny([]float64{0, 1e-9}, 1e-8, pending, ignored))
	assert.True(t, WithinAny([]float64{1, 1}, 1e-8, pending, ignored))
	assert.False(t, WithinAny([]float64{0.5, 0.5}, 1e-8, pending, ignored))

	assert.InDelta(t, 0.7071, MinDistance([]float64{0.5, 0.5}, pending, ignored), 1e-3)
	assert.True(t, MinDistance([]float64{0.5, 0.5}) > 1e300, "no sets means infinite distance")
}
