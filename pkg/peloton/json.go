package peloton

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xokvictor/miles-mcp/pkg/parse"
	"github.com/xokvictor/miles-mcp/pkg/ride"
)

type workoutPage struct {
	Data      *[]map[string]any `json:"data"`
	Page      parse.Number      `json:"page"`
	PageCount parse.Number      `json:"page_count"`
	ShowNext  bool              `json:"show_next"`
}

func (c *Client) pageURL(page int) string {
	params := url.Values{}
	params.Set("joins", "ride,ride.instructor")
	params.Set("limit", strconv.Itoa(c.pageLimit))
	params.Set("page", strconv.Itoa(page))
	params.Set("sort_by", "-created")
	return c.userURL() + "/workouts?" + params.Encode()
}

func (c *Client) fetchPage(ctx context.Context, page int) (*workoutPage, error) {
	resp, err := c.doRequest(ctx, c.pageURL(page))
	if err != nil {
		return nil, err
	}

	var p workoutPage
	dec := json.NewDecoder(bytes.NewReader(resp.body))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: parsing workout listing: %w", ride.ErrUnparsable, err)
	}
	if p.Data == nil {
		return nil, fmt.Errorf("%w: workout listing has no data array", ride.ErrUnparsable)
	}
	return &p, nil
}

// fetchJSON walks the newest-first workout listing until a page reaches back
// past start, the listing ends, or maxPages is hit.
func (c *Client) fetchJSON(ctx context.Context, start time.Time) ([]ride.Workout, error) {
	var workouts []ride.Workout
	for page := 0; page < c.maxPages; page++ {
		p, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", page, err)
		}

		records := *p.Data
		reachedStart := false
		for _, rec := range records {
			w := c.jsonWorkout(rec)
			if !parse.IsUnknown(w.OccurredAt) && w.OccurredAt.Before(start) {
				reachedStart = true
			}
			workouts = append(workouts, w)
		}

		if reachedStart || len(records) == 0 {
			break
		}
		if !p.ShowNext && float64(page+1) >= p.PageCount.Float64() {
			break
		}
	}
	return workouts, nil
}

var bareNumberRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)

func (c *Client) jsonWorkout(rec map[string]any) ride.Workout {
	details, _ := rec["ride"].(map[string]any)

	w := ride.Workout{
		ID:           stringField(rec, "id", "workout_id"),
		Source:       ride.SourcePeloton,
		OccurredAt:   parse.TimestampIn(firstField(rec, "start_time", "created_at", "device_time_created_at"), c.loc),
		ActivityType: stringField(rec, "fitness_discipline", "type", "discipline"),
		Title:        stringField(details, "title"),
		Calories:     max(parse.Int(firstField(rec, "calories", "total_calories"), 0), 0),
	}
	if w.ActivityType == "" {
		w.ActivityType = stringField(details, "fitness_discipline")
	}
	if w.Title == "" {
		w.Title = stringField(rec, "title", "name")
	}

	switch {
	case parse.Float(firstField(details, "duration"), 0) > 0:
		w.DurationMinutes = parse.Float(details["duration"], 0) / 60
	case parse.Float(rec["end_time"], 0) > parse.Float(rec["start_time"], 0) && parse.Float(rec["start_time"], 0) > 0:
		w.DurationMinutes = (parse.Float(rec["end_time"], 0) - parse.Float(rec["start_time"], 0)) / 60
	default:
		w.DurationMinutes = parse.Duration(rec["duration_minutes"])
	}

	// Bare distances in the listing are meters, however they are encoded.
	switch d := rec["distance"].(type) {
	case string:
		if bareNumberRe.MatchString(strings.TrimSpace(d)) {
			w.DistanceMiles = parse.Distance(parse.Float(d, 0) * parse.MetersToMiles)
		} else {
			w.DistanceMiles = parse.Distance(d)
		}
	case nil:
		w.DistanceMiles = parse.Distance(rec["distance_miles"])
	default:
		w.DistanceMiles = parse.Distance(parse.Float(d, 0) * parse.MetersToMiles)
	}

	if hr := parse.Int(firstField(rec, "avg_heart_rate", "average_heart_rate"), 0); hr > 0 {
		w.AvgHeartRate = &hr
	}
	return w
}

func firstField(rec map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func stringField(rec map[string]any, keys ...string) string {
	switch v := firstField(rec, keys...).(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
