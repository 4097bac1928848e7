package annotation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceFor(t *testing.T) {
	tests := []struct {
		cohort string
		format string
	}{
		{"shhs", "nsrr-xml"},
		{"MrOS", "nsrr-xml"},
		{"stages", "stages-csv"},
		{"apples", "apples-annot"},
	}
	for _, tt := range tests {
		t.Run(tt.cohort, func(t *testing.T) {
			src, ok := SourceFor(tt.cohort)
			require.True(t, ok)
			assert.Equal(t, tt.format, src.Format())
		})
	}

	_, ok := SourceFor("unknown-cohort")
	assert.False(t, ok)
}

const nsrrSample = `<?xml version="1.0" encoding="utf-8"?>
<PSGAnnotation>
  <ScoredEvents>
    <ScoredEvent>
      <EventType>Stages|Stages</EventType>
      <EventConcept>Wake|0</EventConcept>
      <Start>0</Start>
      <Duration>60</Duration>
    </ScoredEvent>
    <ScoredEvent>
      <EventType>Stages|Stages</EventType>
      <EventConcept>Stage 2 sleep|2</EventConcept>
      <Start>60</Start>
      <Duration>90</Duration>
    </ScoredEvent>
    <ScoredEvent>
      <EventType>Stages|Stages</EventType>
      <EventConcept>Stage 4 sleep|4</EventConcept>
      <Start>150</Start>
      <Duration>30</Duration>
    </ScoredEvent>
    <ScoredEvent>
      <EventType>Respiratory|Respiratory</EventType>
      <EventConcept>Obstructive apnea|Obstructive Apnea</EventConcept>
      <Start>100.5</Start>
      <Duration>22.3</Duration>
    </ScoredEvent>
  </ScoredEvents>
</PSGAnnotation>`

func TestNSRRXMLSource_Parse(t *testing.T) {
	events, err := NSRRXMLSource{}.Parse(strings.NewReader(nsrrSample))
	require.NoError(t, err)
	require.Len(t, events, 3, "respiratory events are skipped")

	assert.Equal(t, StageEvent{Start: 0, Duration: 60, Stage: StageWake}, events[0])
	assert.Equal(t, StageEvent{Start: 60, Duration: 90, Stage: StageN2}, events[1])
	assert.Equal(t, StageEvent{Start: 150, Duration: 30, Stage: StageN3}, events[2], "stage 4 merges into N3")
}

func TestNSRRXMLSource_GridRoundTrip(t *testing.T) {
	events, err := NSRRXMLSource{}.Parse(strings.NewReader(nsrrSample))
	require.NoError(t, err)

	grid := NewProcessor(30).ToFixedGrid(events)
	assert.Equal(t, []int8{0, 0, 2, 2, 2, 3}, grid)
}

func TestNSRRXMLSource_Malformed(t *testing.T) {
	_, err := NSRRXMLSource{}.Parse(strings.NewReader("<PSGAnnotation><ScoredEvent>"))
	require.Error(t, err)
}

const stagesSample = `Start Time,Duration (seconds),Event
21:34:38,30,Wake
21:35:08,30,Stage1
21:35:38,30,Stage2
21:36:08,5,LightsOff
21:36:08,30,Stage4
`

func TestStagesCSVSource_Parse(t *testing.T) {
	events, err := StagesCSVSource{}.Parse(strings.NewReader(stagesSample))
	require.NoError(t, err)
	require.Len(t, events, 4, "non-stage events are skipped")

	// Clock times are rebased to the first stage row.
	assert.Equal(t, 0.0, events[0].Start)
	assert.Equal(t, 30.0, events[1].Start)
	assert.Equal(t, 90.0, events[3].Start)
	assert.Equal(t, StageN3, events[3].Stage, "stage 4 merges into N3")
}

func TestStagesCSVSource_MidnightWrap(t *testing.T) {
	csv := "Start Time,Duration (seconds),Event\n" +
		"23:59:30,30,Stage2\n" +
		"00:00:00,30,Stage2\n"
	events, err := StagesCSVSource{}.Parse(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].Start)
	assert.Equal(t, 30.0, events[1].Start, "times past midnight unwrap forward")
}

func TestStagesCSVSource_MissingColumns(t *testing.T) {
	_, err := StagesCSVSource{}.Parse(strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)
}

const applesSample = "class\tinstance\tchannel\tstart\tstop\tmeta\n" +
	"W\t1\t\t21:00:00\t21:00:30\t\n" +
	"N2\t2\t\t21:00:30\t21:01:00\t\n" +
	"arousal\t3\t\t21:00:40\t21:00:45\t\n" +
	"R\t4\t\t21:01:00\t21:01:30\t\n"

func TestApplesAnnotSource_Parse(t *testing.T) {
	events, err := ApplesAnnotSource{}.Parse(strings.NewReader(applesSample))
	require.NoError(t, err)
	require.Len(t, events, 3, "arousal rows are skipped")

	assert.Equal(t, StageEvent{Start: 0, Duration: 30, Stage: StageWake}, events[0])
	assert.Equal(t, StageEvent{Start: 30, Duration: 30, Stage: StageN2}, events[1])
	assert.Equal(t, StageEvent{Start: 60, Duration: 30, Stage: StageREM}, events[2])
}

func TestApplesAnnotSource_NoClockFallsBackToRowIndex(t *testing.T) {
	sample := "class\tinstance\tchannel\tstart\tstop\tmeta\n" +
		"W\t1\t\t\t\t\n" +
		"N1\t2\t\t\t\t\n"
	events, err := ApplesAnnotSource{}.Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 0.0, events[0].Start)
	assert.Equal(t, 30.0, events[1].Start)
}
