// Package report generates keyword ranking reports and stores the artifacts
// in object storage.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"seomax/api/internal/store"
)

var csvHeader = []string{"phrase", "country", "volume", "position", "previous_position", "change", "tracked_since"}

// BuildCSV renders the tracked keywords of a project as a CSV artifact.
func BuildCSV(project store.Project, keywords []store.Keyword) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, k := range keywords {
		record := []string{
			k.Phrase,
			k.Country,
			strconv.Itoa(k.Volume),
			strconv.Itoa(k.Position),
			strconv.Itoa(k.PreviousPosition),
			strconv.Itoa(k.PreviousPosition - k.Position),
			k.CreatedAt.Format(time.DateOnly),
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectKey builds the storage key for a project report.
func ObjectKey(projectID string, at time.Time) string {
	return fmt.Sprintf("reports/%s/%s-keywords.csv", projectID, at.UTC().Format("20060102T150405"))
}
