// Package modality partitions canonical channels into physiological
// families and collapses families into fixed-capacity output groups.
package modality

import (
	"sort"

	"github.com/nsrrkit/psgprep/internal/channelmap"
	"github.com/nsrrkit/psgprep/internal/conf"
)

// DefaultFamilyOrder is the fixed order used for availability masks.
var DefaultFamilyOrder = []string{"EEG", "EOG", "ECG", "EMG", "RESP"}

// Detector groups detected channels by modality family and output group.
// All methods are pure functions over the input partition; the Detector
// never mutates its inputs and is safe for concurrent use.
type Detector struct {
	pipeline *conf.PipelineSettings
}

// New builds a Detector from the configured family and group tables.
func New(pipeline *conf.PipelineSettings) *Detector {
	return &Detector{pipeline: pipeline}
}

// FamilyOf returns the modality family of a canonical channel.
func (d *Detector) FamilyOf(canonical string) (string, bool) {
	ch, ok := d.pipeline.ChannelByName(canonical)
	if !ok {
		return "", false
	}
	return ch.Family, true
}

// GroupOf returns the output group a canonical channel belongs to.
func (d *Detector) GroupOf(canonical string) (string, bool) {
	family, ok := d.FamilyOf(canonical)
	if !ok {
		return "", false
	}
	group, ok := d.pipeline.GroupForFamily(family)
	if !ok {
		return "", false
	}
	return group.Name, true
}

// GroupByFamily partitions detected channels by modality family.
// Each canonical channel belongs to exactly one family by static table
// lookup; empty families are omitted.
func (d *Detector) GroupByFamily(detected channelmap.DetectedChannels) map[string]map[string]string {
	grouped := make(map[string]map[string]string)
	for canonical, raw := range detected {
		family, ok := d.FamilyOf(canonical)
		if !ok {
			continue
		}
		if grouped[family] == nil {
			grouped[family] = make(map[string]string)
		}
		grouped[family][canonical] = raw
	}
	return grouped
}

// CollapseToGroups merges family partitions into their assigned output
// groups (EEG and EOG collapse into the combined BAS group, the rest map
// one to one). Empty groups are omitted.
func (d *Detector) CollapseToGroups(familyGroups map[string]map[string]string) map[string]map[string]string {
	collapsed := make(map[string]map[string]string)
	for family, channels := range familyGroups {
		group, ok := d.pipeline.GroupForFamily(family)
		if !ok {
			continue
		}
		if collapsed[group.Name] == nil {
			collapsed[group.Name] = make(map[string]string)
		}
		for canonical, raw := range channels {
			collapsed[group.Name][canonical] = raw
		}
	}
	return collapsed
}

// Availability reports which families have at least one detected channel.
func (d *Detector) Availability(detected channelmap.DetectedChannels) map[string]bool {
	grouped := d.GroupByFamily(detected)
	avail := make(map[string]bool, len(d.pipeline.Families))
	for i := range d.pipeline.Families {
		name := d.pipeline.Families[i].Name
		avail[name] = len(grouped[name]) > 0
	}
	return avail
}

// Counts returns the detected channel count per family, zero included.
func (d *Detector) Counts(detected channelmap.DetectedChannels) map[string]int {
	grouped := d.GroupByFamily(detected)
	counts := make(map[string]int, len(d.pipeline.Families))
	for i := range d.pipeline.Families {
		name := d.pipeline.Families[i].Name
		counts[name] = len(grouped[name])
	}
	return counts
}

// GroupCounts returns the detected channel count per output group.
func (d *Detector) GroupCounts(detected channelmap.DetectedChannels) map[string]int {
	collapsed := d.CollapseToGroups(d.GroupByFamily(detected))
	counts := make(map[string]int, len(d.pipeline.Groups))
	for i := range d.pipeline.Groups {
		name := d.pipeline.Groups[i].Name
		counts[name] = len(collapsed[name])
	}
	return counts
}

// Missing returns families with no detected channel, sorted.
func (d *Detector) Missing(detected channelmap.DetectedChannels) []string {
	avail := d.Availability(detected)
	missing := make([]string, 0)
	for family, ok := range avail {
		if !ok {
			missing = append(missing, family)
		}
	}
	sort.Strings(missing)
	return missing
}

// Mask returns a fixed-order binary availability mask. A nil order uses
// DefaultFamilyOrder.
func (d *Detector) Mask(detected channelmap.DetectedChannels, order []string) []int {
	if order == nil {
		order = DefaultFamilyOrder
	}
	avail := d.Availability(detected)
	mask := make([]int, len(order))
	for i, family := range order {
		if avail[family] {
			mask[i] = 1
		}
	}
	return mask
}

// MeetsCoverage evaluates the configured minimum-coverage gate. The
// second return value names the first unmet requirement; an empty string
// means the gate passed.
func (d *Detector) MeetsCoverage(detected channelmap.DetectedChannels, coverage *conf.CoverageSettings) (bool, string) {
	groupCounts := d.GroupCounts(detected)

	groups := make([]string, 0, len(coverage.Required))
	for group := range coverage.Required {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		if groupCounts[group] < coverage.Required[group] {
			return false, "insufficient " + group + " channels"
		}
	}

	if coverage.MinGroups > 0 {
		nonEmpty := 0
		for _, n := range groupCounts {
			if n > 0 {
				nonEmpty++
			}
		}
		if nonEmpty < coverage.MinGroups {
			return false, "insufficient modality coverage"
		}
	}
	return true, ""
}
