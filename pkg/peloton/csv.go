package peloton

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"regexp"
	"strings"

	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

// csvColumns lists, per normalized field, the export headers that may carry
// it. Earlier aliases win.
var csvColumns = map[string][]string{
	"timestamp":  {"workout timestamp", "timestamp", "created at", "date"},
	"type":       {"fitness discipline", "discipline", "type"},
	"title":      {"title", "class title", "class timestamp"},
	"duration":   {"length (minutes)", "length", "duration"},
	"distance":   {"distance (mi)", "distance (km)", "distance"},
	"calories":   {"calories burned", "calories"},
	"heart_rate": {"avg. heartrate", "avg heart rate (bpm)", "avg heart rate", "average heart rate"},
}

var bareNumberRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

var csvContentTypes = map[string]bool{
	"":                         true,
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/octet-stream": true,
}

func isCSV(contentType string, body []byte) bool {
	mt := ""
	if contentType != "" {
		parsed, _, err := mime.ParseMediaType(contentType)
		if err != nil {
			return false
		}
		mt = parsed
	}
	if !csvContentTypes[mt] {
		return false
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || !bytes.ContainsAny(trimmed[:1], "{[<")
}

type csvIndex struct {
	cols map[string]int
	unit string
}

func indexHeader(header []string) csvIndex {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, seen := pos[key]; !seen {
			pos[key] = i
		}
	}

	idx := csvIndex{cols: make(map[string]int, len(csvColumns))}
	for field, aliases := range csvColumns {
		for _, alias := range aliases {
			if i, ok := pos[alias]; ok {
				idx.cols[field] = i
				if field == "distance" && strings.HasSuffix(alias, "(km)") {
					idx.unit = "km"
				}
				break
			}
		}
	}
	return idx
}

func (idx csvIndex) get(row []string, field string) string {
	i, ok := idx.cols[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCSV turns an export body into workouts. A header without data rows is
// a valid empty export.
func (c *Client) parseCSV(body []byte) ([]ride.Workout, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: csv export is empty", ride.ErrUnparsable)
		}
		return nil, fmt.Errorf("%w: reading csv header: %w", ride.ErrUnparsable, err)
	}

	idx := indexHeader(header)
	if _, ok := idx.cols["timestamp"]; !ok {
		return nil, fmt.Errorf("%w: csv export has no workout timestamp column", ride.ErrUnparsable)
	}

	var (
		workouts []ride.Workout
		skipped  int
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return nil, fmt.Errorf("%w: reading csv: %w", ride.ErrUnparsable, err)
		}
		workouts = append(workouts, c.csvWorkout(idx, row))
	}

	if skipped > 0 {
		c.logger.Warn("skipped malformed csv rows", slog.Int("count", skipped))
	}
	return workouts, nil
}

func (c *Client) csvWorkout(idx csvIndex, row []string) ride.Workout {
	ts := idx.get(row, "timestamp")

	distance := idx.get(row, "distance")
	if idx.unit != "" && bareNumberRe.MatchString(distance) {
		distance += " " + idx.unit
	}

	w := ride.Workout{
		ID:              ts,
		Source:          ride.SourcePeloton,
		OccurredAt:      parse.TimestampIn(ts, c.loc),
		ActivityType:    idx.get(row, "type"),
		Title:           idx.get(row, "title"),
		DurationMinutes: parse.Duration(idx.get(row, "duration")),
		DistanceMiles:   parse.Distance(distance),
		Calories:        max(parse.Int(idx.get(row, "calories"), 0), 0),
	}
	if hr := parse.Int(idx.get(row, "heart_rate"), 0); hr > 0 {
		w.AvgHeartRate = &hr
	}
	return w
}
