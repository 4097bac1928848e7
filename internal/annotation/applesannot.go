package annotation

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ApplesAnnotSource parses the APPLES cohort .annot files: tab-separated
// rows of class, instance, channel, start, stop and meta columns, with
// HH:MM:SS clock times. Rows whose class is not a stage label are
// skipped. Rows without parseable times fall back to 30-second epochs
// indexed by row position, matching the cohort's older exports.
type ApplesAnnotSource struct{}

// applesStageClasses maps the .annot class column to stage codes.
var applesStageClasses = map[string]int8{
	"W":   StageWake,
	"N1":  StageN1,
	"N2":  StageN2,
	"N3":  StageN3,
	"N4":  StageN3,
	"R":   StageREM,
	"REM": StageREM,
	"?":   StageUnknown,
	"U":   StageUnknown,
}

// Format implements Source.
func (ApplesAnnotSource) Format() string { return "apples-annot" }

// Parse implements Source.
func (ApplesAnnotSource) Parse(r io.Reader) ([]StageEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []StageEvent
	row := -1
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		class := strings.TrimSpace(fields[0])
		if row == -1 && (class == "class" || strings.HasPrefix(class, "#")) {
			// Header line.
			continue
		}
		row++

		stage, ok := applesStageClasses[class]
		if !ok {
			continue
		}

		start, startOK := 0.0, false
		duration := 30.0
		if len(fields) > 3 {
			start, startOK = clockToSeconds(fields[3])
		}
		if !startOK {
			start = float64(row) * 30
		}
		if len(fields) > 4 {
			if stop, ok := clockToSeconds(fields[4]); ok && startOK {
				if d := stop - start; d > 0 {
					duration = d
				}
			}
		}

		events = append(events, StageEvent{Start: start, Duration: duration, Stage: stage})
	}
	if err := scanner.Err(); err != nil {
		return nil, parseError("apples-annot", fmt.Errorf("scanning annot file: %w", err))
	}

	return rebase(events), nil
}
