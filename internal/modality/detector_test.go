package modality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsrrkit/psgprep/internal/channelmap"
	"github.com/nsrrkit/psgprep/internal/conf"
)

func testDetector(t *testing.T) *Detector {
	t.Helper()
	settings, err := conf.Load("")
	require.NoError(t, err)
	return New(&settings.Pipeline)
}

var sixChannel = channelmap.DetectedChannels{
	"C3-M2": "C3-M2",
	"LOC":   "LOC",
	"ROC":   "ROC",
	"EKG":   "EKG",
	"Thor":  "THOR RES",
	"ABD":   "ABDOMEN",
}

func TestGroupByFamily(t *testing.T) {
	d := testDetector(t)

	grouped := d.GroupByFamily(sixChannel)

	assert.Equal(t, map[string]string{"C3-M2": "C3-M2"}, grouped["EEG"])
	assert.Equal(t, map[string]string{"LOC": "LOC", "ROC": "ROC"}, grouped["EOG"])
	assert.Equal(t, map[string]string{"EKG": "EKG"}, grouped["ECG"])
	assert.Equal(t, map[string]string{"Thor": "THOR RES", "ABD": "ABDOMEN"}, grouped["RESP"])
	assert.NotContains(t, grouped, "EMG", "empty families are omitted")
}

func TestCollapseToGroups_SixChannelMontage(t *testing.T) {
	d := testDetector(t)

	collapsed := d.CollapseToGroups(d.GroupByFamily(sixChannel))

	// Combined EEG/EOG group gets three channels, respiratory gets two.
	assert.Len(t, collapsed["BAS"], 3)
	assert.Contains(t, collapsed["BAS"], "C3-M2")
	assert.Contains(t, collapsed["BAS"], "LOC")
	assert.Contains(t, collapsed["BAS"], "ROC")
	assert.Equal(t, map[string]string{"Thor": "THOR RES", "ABD": "ABDOMEN"}, collapsed["RESP"])
	assert.Len(t, collapsed["EKG"], 1)
}

func TestAvailabilityAndCounts(t *testing.T) {
	d := testDetector(t)

	avail := d.Availability(sixChannel)
	assert.True(t, avail["EEG"])
	assert.True(t, avail["EOG"])
	assert.False(t, avail["EMG"])

	counts := d.Counts(sixChannel)
	assert.Equal(t, 1, counts["EEG"])
	assert.Equal(t, 2, counts["EOG"])
	assert.Equal(t, 0, counts["EMG"])
	assert.Equal(t, 2, counts["RESP"])
}

func TestMissingAndMask(t *testing.T) {
	d := testDetector(t)

	assert.Equal(t, []string{"EMG"}, d.Missing(sixChannel))
	assert.Equal(t, []int{1, 1, 1, 0, 1}, d.Mask(sixChannel, nil))
	assert.Equal(t, []int{1, 0}, d.Mask(sixChannel, []string{"RESP", "EMG"}))
}

func TestGroupOf(t *testing.T) {
	d := testDetector(t)

	group, ok := d.GroupOf("LOC")
	require.True(t, ok)
	assert.Equal(t, "BAS", group)

	_, ok = d.GroupOf("NotAChannel")
	assert.False(t, ok)
}

func TestMeetsCoverage(t *testing.T) {
	d := testDetector(t)

	t.Run("passes_without_requirements", func(t *testing.T) {
		ok, reason := d.MeetsCoverage(sixChannel, &conf.CoverageSettings{})
		assert.True(t, ok)
		assert.Empty(t, reason)
	})

	t.Run("required_group_count", func(t *testing.T) {
		cov := &conf.CoverageSettings{Required: map[string]int{"EMG": 1}}
		ok, reason := d.MeetsCoverage(sixChannel, cov)
		assert.False(t, ok)
		assert.Contains(t, reason, "EMG")
	})

	t.Run("min_groups", func(t *testing.T) {
		cov := &conf.CoverageSettings{MinGroups: 4}
		ok, _ := d.MeetsCoverage(sixChannel, cov)
		assert.False(t, ok, "EMG group is empty, only 3 of 4 groups covered")

		cov = &conf.CoverageSettings{MinGroups: 3}
		ok, _ = d.MeetsCoverage(sixChannel, cov)
		assert.True(t, ok)
	})
}
