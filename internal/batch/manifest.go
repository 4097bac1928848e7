package batch

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// Item is one manifest row: a recording to preprocess. AnnotationPath
// and Cohort may be empty for signal-only processing.
type Item struct {
	SubjectID      string
	EDFPath        string
	AnnotationPath string
	Cohort         string
}

// LoadManifest reads a CSV manifest. The header row names the columns;
// subject_id and edf_path are required, annotation_path and cohort are
// optional. Column order is free.
func LoadManifest(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, manifestError(path, err)
	}
	defer f.Close()

	items, err := parseManifest(f)
	if err != nil {
		return nil, manifestError(path, err)
	}
	return items, nil
}

func parseManifest(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading manifest header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	subjectCol, ok := cols["subject_id"]
	if !ok {
		return nil, fmt.Errorf("manifest has no subject_id column")
	}
	edfCol, ok := cols["edf_path"]
	if !ok {
		return nil, fmt.Errorf("manifest has no edf_path column")
	}
	annotCol, hasAnnot := cols["annotation_path"]
	cohortCol, hasCohort := cols["cohort"]

	var items []Item
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}

		item := Item{
			SubjectID: strings.TrimSpace(record[subjectCol]),
			EDFPath:   strings.TrimSpace(record[edfCol]),
		}
		if hasAnnot {
			item.AnnotationPath = strings.TrimSpace(record[annotCol])
		}
		if hasCohort {
			item.Cohort = strings.TrimSpace(record[cohortCol])
		}
		if item.SubjectID == "" || item.EDFPath == "" {
			return nil, fmt.Errorf("manifest line %d: subject_id and edf_path are required", line)
		}
		items = append(items, item)
	}
	return items, nil
}

func manifestError(path string, err error) error {
	return errors.New(err).
		Component("batch").
		Category(errors.CategoryConfiguration).
		Context("manifest", path).
		Build()
}
