package annotation

import (
	"log/slog"
	"math"
	"sort"

	"github.com/nsrrkit/psgprep/internal/logging"
)

// Epoch count mismatches up to this many epochs are accepted as-is.
const syncToleranceEpochs = 2

// SyncAction is the adjustment taken by Synchronize.
type SyncAction string

const (
	SyncNone     SyncAction = "none"
	SyncTruncate SyncAction = "truncate"
	SyncPad      SyncAction = "pad"
)

// SyncReport records how an annotation array was reconciled against the
// signal duration. Mismatch is data here, never an error.
type SyncReport struct {
	SignalDuration     float64    `json:"signal_duration_seconds"`
	AnnotationDuration float64    `json:"annotation_duration_seconds"`
	Difference         float64    `json:"difference_seconds"`
	ExpectedEpochs     int        `json:"expected_epochs"`
	AnnotationEpochs   int        `json:"annotation_epochs"`
	Action             SyncAction `json:"action"`
}

// Processor builds fixed-grid label arrays from stage events. The epoch
// duration is fixed at construction, 30 s in every supported cohort.
type Processor struct {
	epochSeconds float64
	log          *slog.Logger
}

// NewProcessor returns a Processor with the given epoch duration.
func NewProcessor(epochSeconds int) *Processor {
	return &Processor{
		epochSeconds: float64(epochSeconds),
		log:          logging.ForModule("annotation"),
	}
}

// ToFixedGrid converts stage events to one label per epoch. Events are
// sorted by start offset; the array covers up to the latest event end,
// rounded up to a whole epoch. Unscored epochs stay at unknown (-1).
// Overlapping events overwrite in sorted order (last write wins), which
// tolerates noisy source annotations without failing.
func (p *Processor) ToFixedGrid(events []StageEvent) []int8 {
	if len(events) == 0 {
		return []int8{}
	}

	sorted := make([]StageEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	var latestEnd float64
	for i := range sorted {
		if end := sorted[i].Start + sorted[i].Duration; end > latestEnd {
			latestEnd = end
		}
	}

	numEpochs := p.epochCount(latestEnd)
	grid := make([]int8, numEpochs)
	for i := range grid {
		grid[i] = StageUnknown
	}

	for i := range sorted {
		ev := &sorted[i]
		startEpoch := int(math.Floor(ev.Start / p.epochSeconds))
		endEpoch := int(math.Ceil((ev.Start + ev.Duration) / p.epochSeconds))
		if startEpoch < 0 {
			startEpoch = 0
		}
		if endEpoch > numEpochs {
			endEpoch = numEpochs
		}
		for e := startEpoch; e < endEpoch; e++ {
			grid[e] = ev.Stage
		}
	}
	return grid
}

// Synchronize reconciles a stage array against the true signal duration.
// Differences within the tolerance are returned unchanged; longer arrays
// are truncated to the expected epoch count, shorter ones right-padded
// with unknown.
func (p *Processor) Synchronize(stages []int8, signalDuration float64) ([]int8, SyncReport) {
	expected := p.epochCount(signalDuration)
	report := SyncReport{
		SignalDuration:     signalDuration,
		AnnotationDuration: float64(len(stages)) * p.epochSeconds,
		ExpectedEpochs:     expected,
		AnnotationEpochs:   len(stages),
		Action:             SyncNone,
	}
	report.Difference = math.Abs(report.SignalDuration - report.AnnotationDuration)

	diff := expected - len(stages)
	if diff >= -syncToleranceEpochs && diff <= syncToleranceEpochs {
		return stages, report
	}

	if diff < 0 {
		report.Action = SyncTruncate
		p.log.Warn("truncating annotations to signal duration",
			"annotation_epochs", len(stages),
			"expected_epochs", expected)
		return stages[:expected], report
	}

	report.Action = SyncPad
	p.log.Warn("padding annotations to signal duration",
		"annotation_epochs", len(stages),
		"expected_epochs", expected)
	padded := make([]int8, expected)
	copy(padded, stages)
	for i := len(stages); i < expected; i++ {
		padded[i] = StageUnknown
	}
	return padded, report
}

// epochCount maps a duration in seconds to an epoch count. Ceil is used
// uniformly so a trailing partial epoch is represented rather than
// dropped; at exact multiples of the epoch duration ceil and floor
// agree.
func (p *Processor) epochCount(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds / p.epochSeconds))
}
