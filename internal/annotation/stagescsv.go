package annotation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// StagesCSVSource parses the STAGES cohort CSV event log:
// "Start Time,Duration (seconds),Event" rows with wall-clock start
// times. Stage rows are identified by label substring, matching the
// cohort's mixed event vocabulary; all other events are skipped.
type StagesCSVSource struct{}

// stagesCSVLabels in match precedence order: longer labels first so
// "Stage1" never matches inside another label's row by accident.
var stagesCSVLabels = []struct {
	label string
	stage int8
}{
	{"UnknownStage", StageUnknown},
	{"Unscored", StageUnknown},
	{"Stage1", StageN1},
	{"Stage2", StageN2},
	{"Stage3", StageN3},
	{"Stage4", StageN3},
	{"Wake", StageWake},
	{"REM", StageREM},
}

// Format implements Source.
func (StagesCSVSource) Format() string { return "stages-csv" }

// Parse implements Source. Clock times are rebased so the earliest
// stage row becomes offset zero.
func (StagesCSVSource) Parse(r io.Reader) ([]StageEvent, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, parseError("stages-csv", fmt.Errorf("reading header: %w", err))
	}
	startCol, durationCol, eventCol := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Start Time":
			startCol = i
		case "Duration (seconds)":
			durationCol = i
		case "Event":
			eventCol = i
		}
	}
	if startCol < 0 || durationCol < 0 || eventCol < 0 {
		return nil, parseError("stages-csv", fmt.Errorf("missing required columns in header %v", header))
	}

	var events []StageEvent
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError("stages-csv", fmt.Errorf("reading row: %w", err))
		}
		if len(row) <= startCol || len(row) <= durationCol || len(row) <= eventCol {
			continue
		}

		stage, ok := matchStagesLabel(row[eventCol])
		if !ok {
			continue
		}

		start, ok := clockToSeconds(row[startCol])
		if !ok {
			continue
		}
		duration, err := strconv.ParseFloat(strings.TrimSpace(row[durationCol]), 64)
		if err != nil || duration <= 0 {
			duration = 30
		}

		events = append(events, StageEvent{Start: start, Duration: duration, Stage: stage})
	}

	return rebase(events), nil
}

func matchStagesLabel(event string) (int8, bool) {
	for _, entry := range stagesCSVLabels {
		if strings.Contains(event, entry.label) {
			return entry.stage, true
		}
	}
	return StageUnknown, false
}

// clockToSeconds parses either a plain seconds offset or an HH:MM:SS
// wall-clock time into seconds.
func clockToSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h*3600+m*60) + sec, true
}

func parseError(format string, err error) error {
	return errors.New(err).
		Component("annotation").
		Category(errors.CategoryAnnotationParse).
		Context("format", format).
		Build()
}
