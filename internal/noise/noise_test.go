package noise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// S1 — noise bound: 10,000 samples from Big Ben must stay within rmax+eps
// and land exactly on the discretization grid.
func TestAddNoise_BoundAndGrid(t *testing.T) {
	m := New(1.1, 3, 0.0005)
	lat, lon := 51.5007, -0.1246

	const n = 10000
	var maxDist float64
	for i := 0; i < n; i++ {
		nlat, nlon := m.AddNoise(lat, lon)

		d := HaversineKm(lat, lon, nlat, nlon)
		if d > maxDist {
			maxDist = d
		}
		require.LessOrEqual(t, d, m.RMaxKm+0.001, "sample %d exceeded rmax", i)

		requireOnGrid(t, nlat, m.GridUnit)
		requireOnGrid(t, nlon, m.GridUnit)
	}
	t.Logf("max distance observed: %.4f km", maxDist)
}

func requireOnGrid(t *testing.T, v, unit float64) {
	t.Helper()
	rem := math.Mod(v, unit)
	if rem < 0 {
		rem += unit
	}
	dist := math.Min(rem, unit-rem)
	require.InDelta(t, 0, dist, 1e-9)
}

func TestAddNoise_DeterministicWithSource(t *testing.T) {
	src := constantByteReader{b: 0x40}
	m := NewWithSource(1.1, 3, 0.0005, src)
	lat1, lon1 := m.AddNoise(51.5, -0.12)
	lat2, lon2 := m.AddNoise(51.5, -0.12)
	require.Equal(t, lat1, lat2)
	require.Equal(t, lon1, lon2)
}

// constantByteReader always yields the same byte, giving a deterministic
// (if degenerate) randomness stream for reproducibility tests.
type constantByteReader struct{ b byte }

func (c constantByteReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.b
	}
	return len(p), nil
}
