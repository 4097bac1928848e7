// config.go: settings structs for the psgprep pipeline and functions to load them.
package conf

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/nsrrkit/psgprep/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// ChannelDef describes one canonical channel: its modality family and the
// raw labels it may appear under across cohorts. Priority, when set,
// overrides the alias order during resolution.
type ChannelDef struct {
	Name     string   // canonical channel name, e.g. "C3-M2"
	Family   string   // modality family, e.g. "EEG"
	Aliases  []string // raw labels accepted for this channel
	Priority []string // optional alias search order override
}

// FamilyFilter holds the bandpass parameters applied to every channel
// of one modality family.
type FamilyFilter struct {
	Name  string  // family name, e.g. "EEG"
	Low   float64 // low cutoff in Hz
	High  float64 // high cutoff in Hz
	Order int     // Butterworth order
}

// GroupDef describes one fixed-capacity output group and which families
// collapse into it.
type GroupDef struct {
	Name     string   // output group name, e.g. "BAS"
	Families []string // families merged into this group
	Cap      int      // maximum channel count after enforcement
	Priority []string // canonical names kept first when truncating
}

// CoverageSettings gates recordings on minimum modality coverage.
// Recordings failing the gate are skipped, not errored.
type CoverageSettings struct {
	MinGroups int            // minimum number of non-empty output groups
	Required  map[string]int `mapstructure:"-"` // group -> minimum channel count
	// RequiredList is the serialized form of Required; lists survive
	// viper's key lowercasing where map keys do not.
	RequiredList []GroupRequirement `mapstructure:"required"`
}

// GroupRequirement is one entry of the coverage gate.
type GroupRequirement struct {
	Group string
	Min   int
}

// PipelineSettings holds the immutable signal and annotation parameters.
type PipelineSettings struct {
	TargetRate   int    // fixed output sampling rate in Hz
	EpochSeconds int    // sleep stage epoch duration
	Dtype        string // output quantization dtype, "float16"
	ChunkMinutes int    // container chunk span in minutes

	Channels []ChannelDef
	Families []FamilyFilter
	Groups   []GroupDef
	Coverage CoverageSettings
}

// BatchSettings controls the batch driver.
type BatchSettings struct {
	Workers        int    // concurrent recordings, 0 = GOMAXPROCS
	OutputDir      string // output directory for containers and stage arrays
	TimeoutSeconds int    // per-recording timeout, 0 = none
}

// Settings is the root configuration, constructed once at startup and
// treated as read-only for the lifetime of the run.
type Settings struct {
	Debug bool

	Log struct {
		Path string
	}

	Pipeline PipelineSettings
	Batch    BatchSettings
}

// Load reads the embedded defaults, an optional configuration file and
// PSGPREP_* environment variables into a validated Settings value.
// configPath may be empty to run on defaults alone.
func Load(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading embedded defaults: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, errors.New(fmt.Errorf("parsing embedded defaults: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, errors.New(fmt.Errorf("reading config %s: %w", configPath, err)).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("path", configPath).
				Build()
		}
	}

	v.SetEnvPrefix("psgprep")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("unmarshaling config: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	settings.Pipeline.Coverage.Required = make(map[string]int, len(settings.Pipeline.Coverage.RequiredList))
	for _, r := range settings.Pipeline.Coverage.RequiredList {
		settings.Pipeline.Coverage.Required[r.Group] = r.Min
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// ChannelByName returns the definition of a canonical channel.
func (p *PipelineSettings) ChannelByName(name string) (ChannelDef, bool) {
	for i := range p.Channels {
		if p.Channels[i].Name == name {
			return p.Channels[i], true
		}
	}
	return ChannelDef{}, false
}

// FamilyFilterByName returns the filter parameters of a family.
func (p *PipelineSettings) FamilyFilterByName(name string) (FamilyFilter, bool) {
	for i := range p.Families {
		if p.Families[i].Name == name {
			return p.Families[i], true
		}
	}
	return FamilyFilter{}, false
}

// GroupForFamily returns the output group a family collapses into.
func (p *PipelineSettings) GroupForFamily(family string) (GroupDef, bool) {
	for i := range p.Groups {
		for _, f := range p.Groups[i].Families {
			if f == family {
				return p.Groups[i], true
			}
		}
	}
	return GroupDef{}, false
}

// GroupByName returns an output group definition.
func (p *PipelineSettings) GroupByName(name string) (GroupDef, bool) {
	for i := range p.Groups {
		if p.Groups[i].Name == name {
			return p.Groups[i], true
		}
	}
	return GroupDef{}, false
}
