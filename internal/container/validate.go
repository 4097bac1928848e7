package container

import (
	"fmt"
	"math"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// Validate checks the structural invariants of a loaded container:
// attribute consistency, one array per named channel, identical array
// lengths matching the recorded duration, and finite sample values.
// The first violation is returned.
func Validate(c *Container) error {
	if c.Attrs.TargetRate <= 0 {
		return validationError(fmt.Errorf("non-positive sampling rate %d", c.Attrs.TargetRate))
	}
	if c.Attrs.NumChannels != len(c.Attrs.ChannelNames) {
		return validationError(fmt.Errorf("num_channels %d does not match %d channel names",
			c.Attrs.NumChannels, len(c.Attrs.ChannelNames)))
	}
	if len(c.Channels) != len(c.Attrs.ChannelNames) {
		return validationError(fmt.Errorf("%d arrays for %d channel names",
			len(c.Channels), len(c.Attrs.ChannelNames)))
	}

	seen := make(map[string]bool, len(c.Attrs.ChannelNames))
	length := -1
	for _, name := range c.Attrs.ChannelNames {
		if seen[name] {
			return validationError(fmt.Errorf("duplicate channel name %q", name))
		}
		seen[name] = true

		samples, ok := c.Channels[name]
		if !ok {
			return validationError(fmt.Errorf("channel %q has no array", name))
		}
		if length < 0 {
			length = len(samples)
		} else if len(samples) != length {
			return validationError(fmt.Errorf("channel %q length %d differs from %d",
				name, len(samples), length))
		}

		for i, v := range samples {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return validationError(fmt.Errorf("channel %q sample %d is not finite", name, i))
			}
		}

		stats, ok := c.Attrs.Stats[name]
		if !ok {
			return validationError(fmt.Errorf("channel %q has no normalization stats", name))
		}
		if stats.Std <= 0 {
			return validationError(fmt.Errorf("channel %q has non-positive std %g", name, stats.Std))
		}
	}

	// Native-rate rounding during resampling can leave the common length
	// one sample short of duration * rate.
	expected := c.Attrs.DurationSeconds * float64(c.Attrs.TargetRate)
	if length >= 0 && math.Abs(float64(length)-expected) > 1 {
		return validationError(fmt.Errorf("channel length %d inconsistent with duration %.3f s at %d Hz",
			length, c.Attrs.DurationSeconds, c.Attrs.TargetRate))
	}
	return nil
}

// ValidateStages checks that every epoch label is one of the known
// stage codes.
func ValidateStages(stages []int8) error {
	for i, s := range stages {
		switch s {
		case -1, 0, 1, 2, 3, 5:
		default:
			return validationError(fmt.Errorf("epoch %d has invalid stage code %d", i, s))
		}
	}
	return nil
}

func validationError(err error) error {
	return errors.New(err).
		Component("container").
		Category(errors.CategoryValidation).
		Build()
}
