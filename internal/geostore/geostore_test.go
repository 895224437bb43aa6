package geostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S2 — nearby query: from Big Ben with max_distance=6, expect London Eye
// first, Tower Bridge second, Greenwich and Wembley excluded.
func TestQueryNearby(t *testing.T) {
	s := NewMemStore()
	now := time.Now()

	require.NoError(t, s.UpsertPoint("big_ben", 51.5007, -0.1246, now))
	require.NoError(t, s.UpsertPoint("london_eye", 51.5033, -0.1196, now))
	require.NoError(t, s.UpsertPoint("tower_bridge", 51.5055, -0.0754, now))
	require.NoError(t, s.UpsertPoint("wembley", 51.5580, -0.2795, now))
	require.NoError(t, s.UpsertPoint("greenwich", 51.4826, -0.0077, now))

	neighbors, err := s.QueryNearby("big_ben", 6, 20)
	require.NoError(t, err)
	require.NotEmpty(t, neighbors)

	var ids []string
	for _, n := range neighbors {
		ids = append(ids, n.UserID)
	}
	require.Equal(t, "london_eye", ids[0])
	require.Contains(t, ids, "tower_bridge")
	require.NotContains(t, ids, "wembley")
	require.NotContains(t, ids, "big_ben")

	for i := 1; i < len(neighbors); i++ {
		require.LessOrEqual(t, neighbors[i-1].DistanceKm, neighbors[i].DistanceKm)
	}
}

func TestQueryNearbyRespectsLimit(t *testing.T) {
	s := NewMemStore()
	now := time.Now()
	origin := "origin"
	require.NoError(t, s.UpsertPoint(origin, 0, 0, now))
	for i := 0; i < 30; i++ {
		id := string(rune('a' + i%26))
		require.NoError(t, s.UpsertPoint(id+string(rune(i)), float64(i)*0.001, 0, now))
	}

	neighbors, err := s.QueryNearby(origin, 1000, 20)
	require.NoError(t, err)
	require.LessOrEqual(t, len(neighbors), 20)
}

func TestUpsertPointRejectsOutOfRangeCoordinates(t *testing.T) {
	s := NewMemStore()
	err := s.UpsertPoint("alice", 91, 0, time.Now())
	require.Error(t, err)
}

func TestQueryNearbyUnknownUser(t *testing.T) {
	s := NewMemStore()
	_, err := s.QueryNearby("ghost", 5, 20)
	require.Error(t, err)
}
