package annotation

import (
	"io"
	"strings"
)

// Source parses one cohort's annotation format into the uniform stage
// event list. Implementations must be stateless and safe for concurrent
// use; format selection happens at the system boundary via Registry,
// never inside the grid/synchronization core.
type Source interface {
	// Format names the annotation grammar, for diagnostics.
	Format() string
	// Parse reads an annotation stream and returns stage events.
	Parse(r io.Reader) ([]StageEvent, error)
}

// registry maps cohort names to their annotation source. NSRR cohorts
// SHHS and MrOS share the XML scored-event export.
var registry = map[string]Source{
	"shhs":   NSRRXMLSource{},
	"mros":   NSRRXMLSource{},
	"stages": StagesCSVSource{},
	"apples": ApplesAnnotSource{},
}

// SourceFor resolves the annotation source for a cohort name.
func SourceFor(cohort string) (Source, bool) {
	src, ok := registry[strings.ToLower(cohort)]
	return src, ok
}

// Cohorts returns the registered cohort names.
func Cohorts() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// rebase shifts events so the earliest start maps to zero. Cohorts that
// annotate in wall-clock seconds-of-day need this before gridding;
// events past midnight are unwrapped first so ordering survives.
func rebase(events []StageEvent) []StageEvent {
	if len(events) == 0 {
		return events
	}

	first := events[0].Start
	min := first
	for i := range events {
		// Unwrap clock rollover relative to the first event.
		for events[i].Start < first-43200 {
			events[i].Start += 86400
		}
		if events[i].Start < min {
			min = events[i].Start
		}
	}
	for i := range events {
		events[i].Start -= min
	}
	return events
}
