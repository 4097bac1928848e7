package annotation

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// NSRRXMLSource parses the NSRR XML scored-event export used by the
// SHHS and MrOS cohorts: a stream of ScoredEvent elements carrying
// EventConcept, Start and Duration children. Only sleep stage concepts
// are consumed; respiratory and arousal events are skipped.
type NSRRXMLSource struct{}

// nsrrStageConcepts maps NSRR EventConcept labels to stage codes.
// Stage 4 merges into N3.
var nsrrStageConcepts = map[string]int8{
	"Wake|0":          StageWake,
	"Stage 1 sleep|1": StageN1,
	"Stage 2 sleep|2": StageN2,
	"Stage 3 sleep|3": StageN3,
	"Stage 4 sleep|4": StageN3,
	"REM sleep|5":     StageREM,
	"Unscored|9":      StageUnknown,
}

type nsrrScoredEvent struct {
	EventType    string  `xml:"EventType"`
	EventConcept string  `xml:"EventConcept"`
	Start        float64 `xml:"Start"`
	Duration     float64 `xml:"Duration"`
}

// Format implements Source.
func (NSRRXMLSource) Format() string { return "nsrr-xml" }

// Parse implements Source. ScoredEvent elements are matched at any
// nesting depth, mirroring how the NSRR exports vary across releases.
func (NSRRXMLSource) Parse(r io.Reader) ([]StageEvent, error) {
	decoder := xml.NewDecoder(r)
	var events []StageEvent

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.New(fmt.Errorf("decoding NSRR XML: %w", err)).
				Component("annotation").
				Category(errors.CategoryAnnotationParse).
				Context("format", "nsrr-xml").
				Build()
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "ScoredEvent" {
			continue
		}

		var scored nsrrScoredEvent
		if err := decoder.DecodeElement(&scored, &start); err != nil {
			return nil, errors.New(fmt.Errorf("decoding ScoredEvent: %w", err)).
				Component("annotation").
				Category(errors.CategoryAnnotationParse).
				Context("format", "nsrr-xml").
				Build()
		}

		if !strings.Contains(scored.EventConcept, "Stage") &&
			!strings.Contains(scored.EventConcept, "Wake") &&
			!strings.Contains(scored.EventConcept, "REM") &&
			!strings.Contains(scored.EventConcept, "Unscored") {
			continue
		}

		stage, known := nsrrStageConcepts[scored.EventConcept]
		if !known {
			stage = StageUnknown
		}
		duration := scored.Duration
		if duration <= 0 {
			duration = 30
		}
		events = append(events, StageEvent{
			Start:    scored.Start,
			Duration: duration,
			Stage:    stage,
		})
	}

	return events, nil
}
