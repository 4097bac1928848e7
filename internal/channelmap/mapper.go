// Package channelmap resolves cohort-specific raw channel labels to
// canonical channel identities using alias tables and priority ordering.
package channelmap

import (
	"sort"
	"strings"

	"github.com/nsrrkit/psgprep/internal/conf"
)

// DetectedChannels maps canonical channel name -> raw label actually
// present in a recording. At most one raw label per canonical name.
type DetectedChannels map[string]string

// Mapper resolves raw channel labels against the configured alias tables.
// It is immutable after construction and safe for concurrent use.
type Mapper struct {
	channels []conf.ChannelDef

	// alias (lowercased) -> canonical name, first definition wins
	reverse map[string]string
}

// New builds a Mapper from the configured channel table.
func New(pipeline *conf.PipelineSettings) *Mapper {
	m := &Mapper{
		channels: pipeline.Channels,
		reverse:  make(map[string]string),
	}
	for i := range pipeline.Channels {
		ch := &pipeline.Channels[i]
		for _, alias := range ch.Aliases {
			key := strings.ToLower(alias)
			if _, exists := m.reverse[key]; !exists {
				m.reverse[key] = ch.Name
			}
		}
	}
	return m
}

// Resolve maps a recording's raw labels to canonical channels. For each
// canonical channel the alias search order is walked and the first exact
// case-insensitive match wins. Canonical channels with no match are
// absent from the result; that is never an error.
//
// The result is a pure function of the label set: permuting rawLabels
// does not change the output. When two raw labels differ only by case,
// the lexicographically smaller original label is kept so the mapping
// stays deterministic.
func (m *Mapper) Resolve(rawLabels []string) DetectedChannels {
	available := make(map[string]string, len(rawLabels))
	for _, label := range rawLabels {
		key := strings.ToLower(label)
		if prev, ok := available[key]; !ok || label < prev {
			available[key] = label
		}
	}

	detected := make(DetectedChannels)
	for i := range m.channels {
		ch := &m.channels[i]
		for _, alias := range m.searchOrder(ch) {
			if found, ok := available[strings.ToLower(alias)]; ok {
				detected[ch.Name] = found
				break
			}
		}
	}
	return detected
}

// ReverseLookup returns the canonical name a raw label would resolve to,
// or false when the label is not a known alias. Exact token match only,
// no fuzzy or substring matching.
func (m *Mapper) ReverseLookup(rawLabel string) (string, bool) {
	canonical, ok := m.reverse[strings.ToLower(rawLabel)]
	return canonical, ok
}

// CanonicalNames returns all configured canonical names in table order.
func (m *Mapper) CanonicalNames() []string {
	names := make([]string, len(m.channels))
	for i := range m.channels {
		names[i] = m.channels[i].Name
	}
	return names
}

// SortedCanonical returns the detected canonical names in lexicographic
// order, the deterministic iteration order used by downstream stages.
func (d DetectedChannels) SortedCanonical() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// searchOrder returns the alias probe order for one channel: the
// configured priority list when present, the alias list otherwise.
func (m *Mapper) searchOrder(ch *conf.ChannelDef) []string {
	if len(ch.Priority) > 0 {
		return ch.Priority
	}
	return ch.Aliases
}
