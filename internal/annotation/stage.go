// Package annotation converts cohort-specific sleep stage annotations
// into a fixed 30-second-epoch label array and reconciles it against
// the recorded signal duration.
package annotation

// Stage codes in the output label space. N4 is merged into N3 by
// convention; no other codes are emitted.
const (
	StageUnknown int8 = -1
	StageWake    int8 = 0
	StageN1      int8 = 1
	StageN2      int8 = 2
	StageN3      int8 = 3
	StageREM     int8 = 5
)

// StageEvent is one scored interval of a sleep study, in seconds from
// the start of the recording.
type StageEvent struct {
	Start    float64 // offset from recording start
	Duration float64 // seconds
	Stage    int8    // stage code
}

// stageNames maps codes to the names used in summaries.
var stageNames = map[int8]string{
	StageUnknown: "unknown",
	StageWake:    "wake",
	StageN1:      "n1",
	StageN2:      "n2",
	StageN3:      "n3",
	StageREM:     "rem",
}

// StageName returns the display name of a stage code.
func StageName(code int8) string {
	if name, ok := stageNames[code]; ok {
		return name
	}
	return "invalid"
}

// Distribution counts epochs per stage name.
func Distribution(stages []int8) map[string]int {
	dist := make(map[string]int)
	for _, code := range stages {
		dist[StageName(code)]++
	}
	return dist
}
