package conf

import (
	"strings"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// Validate checks the configuration tables for structural problems.
// Any error returned here is fatal for the whole run; the tables are the
// only place where a hard failure is the correct outcome.
func (s *Settings) Validate() error {
	p := &s.Pipeline

	if p.TargetRate <= 0 {
		return configErrorf("pipeline.targetrate must be positive, got %d", p.TargetRate)
	}
	if p.EpochSeconds <= 0 {
		return configErrorf("pipeline.epochseconds must be positive, got %d", p.EpochSeconds)
	}
	if p.Dtype != "float16" && p.Dtype != "float32" {
		return configErrorf("pipeline.dtype must be float16 or float32, got %q", p.Dtype)
	}
	if p.ChunkMinutes <= 0 {
		return configErrorf("pipeline.chunkminutes must be positive, got %d", p.ChunkMinutes)
	}
	if len(p.Channels) == 0 {
		return configErrorf("pipeline.channels table is empty")
	}

	seen := make(map[string]bool, len(p.Channels))
	for i := range p.Channels {
		ch := &p.Channels[i]
		if ch.Name == "" {
			return configErrorf("pipeline.channels[%d] has no name", i)
		}
		if seen[ch.Name] {
			return configErrorf("duplicate canonical channel %q", ch.Name)
		}
		seen[ch.Name] = true
		if len(ch.Aliases) == 0 {
			return configErrorf("channel %q has no aliases", ch.Name)
		}
		if ch.Family == "" {
			return configErrorf("channel %q has no family", ch.Name)
		}
		if _, ok := p.FamilyFilterByName(ch.Family); !ok {
			return configErrorf("channel %q references unknown family %q", ch.Name, ch.Family)
		}
		if _, ok := p.GroupForFamily(ch.Family); !ok {
			return configErrorf("family %q of channel %q belongs to no output group", ch.Family, ch.Name)
		}
		for _, pr := range ch.Priority {
			if !containsFold(ch.Aliases, pr) {
				return configErrorf("channel %q priority entry %q is not an alias", ch.Name, pr)
			}
		}
	}

	for i := range p.Families {
		f := &p.Families[i]
		if f.Name == "" {
			return configErrorf("pipeline.families[%d] has no name", i)
		}
		if f.Order <= 0 {
			return configErrorf("family %q filter order must be positive, got %d", f.Name, f.Order)
		}
		if f.Low < 0 || f.High <= 0 {
			return configErrorf("family %q cutoffs must be non-negative, got [%g, %g]", f.Name, f.Low, f.High)
		}
	}

	groupFamilies := make(map[string]string)
	for i := range p.Groups {
		g := &p.Groups[i]
		if g.Name == "" {
			return configErrorf("pipeline.groups[%d] has no name", i)
		}
		if g.Cap <= 0 {
			return configErrorf("group %q cap must be positive, got %d", g.Name, g.Cap)
		}
		for _, fam := range g.Families {
			if prev, dup := groupFamilies[fam]; dup {
				return configErrorf("family %q assigned to both group %q and %q", fam, prev, g.Name)
			}
			groupFamilies[fam] = g.Name
		}
		for _, pr := range g.Priority {
			if !seen[pr] {
				return configErrorf("group %q priority entry %q is not a canonical channel", g.Name, pr)
			}
		}
	}

	for group := range p.Coverage.Required {
		if _, ok := p.GroupByName(group); !ok {
			return configErrorf("coverage requirement references unknown group %q", group)
		}
	}

	return nil
}

func configErrorf(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Build()
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
