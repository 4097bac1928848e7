package channelmap

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsrrkit/psgprep/internal/conf"
)

func testMapper(t *testing.T) *Mapper {
	t.Helper()
	settings, err := conf.Load("")
	require.NoError(t, err)
	return New(&settings.Pipeline)
}

func TestResolve_ExactCaseInsensitive(t *testing.T) {
	m := testMapper(t)

	detected := m.Resolve([]string{"c3m2", "loc", "THOR RES", "abdomen"})

	assert.Equal(t, "c3m2", detected["C3-M2"])
	assert.Equal(t, "loc", detected["LOC"])
	assert.Equal(t, "THOR RES", detected["Thor"])
	assert.Equal(t, "abdomen", detected["ABD"])
}

func TestResolve_NoSubstringMatching(t *testing.T) {
	m := testMapper(t)

	// "C3M2 backup" contains an alias but is not an exact token.
	detected := m.Resolve([]string{"C3M2 backup", "EEGC3"})
	assert.NotContains(t, detected, "C3-M2")
}

func TestResolve_MissingChannelsAbsent(t *testing.T) {
	m := testMapper(t)

	detected := m.Resolve([]string{"EKG"})
	assert.Equal(t, DetectedChannels{"EKG": "EKG"}, detected)
}

func TestResolve_PriorityOrderWins(t *testing.T) {
	m := testMapper(t)

	// The EKG channel prefers "ECG" over "EKG1" per its priority list.
	detected := m.Resolve([]string{"EKG1", "ECG"})
	assert.Equal(t, "ECG", detected["EKG"])
}

func TestResolve_OrderIndependent(t *testing.T) {
	m := testMapper(t)

	labels := []string{"C3-M2", "LOC", "ROC", "EKG", "THOR RES", "ABDOMEN", "Chin", "Airflow"}
	want := m.Resolve(labels)

	for range 20 {
		shuffled := make([]string, len(labels))
		copy(shuffled, labels)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, want, m.Resolve(shuffled))
	}
}

func TestResolve_CaseDuplicateDeterministic(t *testing.T) {
	m := testMapper(t)

	a := m.Resolve([]string{"ekg", "EKG"})
	b := m.Resolve([]string{"EKG", "ekg"})
	assert.Equal(t, a, b)
	assert.Equal(t, "EKG", a["EKG"], "lexicographically smaller original label wins")
}

func TestResolve_MixedCohortLabels(t *testing.T) {
	m := testMapper(t)

	detected := m.Resolve([]string{"C3-M2", "LOC", "ROC", "EKG", "THOR RES", "ABDOMEN"})
	require.Len(t, detected, 6)
	assert.Equal(t, "THOR RES", detected["Thor"])
	assert.Equal(t, "ABDOMEN", detected["ABD"])
}

func TestReverseLookup(t *testing.T) {
	m := testMapper(t)

	canonical, ok := m.ReverseLookup("thor res")
	require.True(t, ok)
	assert.Equal(t, "Thor", canonical)

	_, ok = m.ReverseLookup("definitely not a channel")
	assert.False(t, ok)
}

func TestSortedCanonical(t *testing.T) {
	d := DetectedChannels{"Thor": "THOR RES", "ABD": "ABDOMEN", "C3-M2": "C3M2"}
	assert.Equal(t, []string{"ABD", "C3-M2", "Thor"}, d.SortedCanonical())
}
