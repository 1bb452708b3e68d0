package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/infofluencer/infofluencer/platform/go/graph"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

const insightsWindow = 28 * 24 * time.Hour

var (
	demographicBreakdowns = []string{"age", "city", "country", "gender"}
	// Metrics returned as a daily series.
	seriesMetrics = []string{"reach", "follower_count"}
	// Metrics only available as a window total.
	totalMetrics = []string{"accounts_engaged", "total_interactions", "likes", "comments", "shares", "saves"}
)

type instagramFetcher struct {
	graph *graph.Client
	now   func() time.Time
}

func requireAccount(req Request) error {
	if req.ResourceID == "" {
		return errors.New("instagram: business account id is required")
	}
	return nil
}

func (f *instagramFetcher) profile(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	if err := requireAccount(req); err != nil {
		return nil, err
	}
	var raw map[string]any
	q := url.Values{"fields": {strings.Join(sources(d.Columns), ",")}}
	if err := f.graph.Get(ctx, req.ResourceID, req.AccessToken, q, &raw); err != nil {
		return nil, err
	}
	row, err := report.Normalize(d, raw)
	if err != nil {
		return nil, err
	}
	return []report.Row{row}, nil
}

func (f *instagramFetcher) media(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	if err := requireAccount(req); err != nil {
		return nil, err
	}
	var body struct {
		Data []map[string]any `json:"data"`
	}
	q := url.Values{"fields": {strings.Join(sources(d.Columns), ",")}}
	if d.Limit > 0 {
		q.Set("limit", strconv.Itoa(d.Limit))
	}
	if err := f.graph.Get(ctx, req.ResourceID+"/media", req.AccessToken, q, &body); err != nil {
		return nil, err
	}
	out := make([]report.Row, 0, len(body.Data))
	for _, item := range body.Data {
		if d.Limit > 0 && len(out) == d.Limit {
			break
		}
		row, err := report.Normalize(d, item)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

type insightsResponse struct {
	Data []insightMetric `json:"data"`
}

type insightMetric struct {
	Name   string `json:"name"`
	Period string `json:"period"`
	Values []struct {
		Value   json.Number `json:"value"`
		EndTime string      `json:"end_time"`
	} `json:"values"`
	TotalValue *struct {
		Value      json.Number `json:"value"`
		Breakdowns []struct {
			DimensionKeys []string `json:"dimension_keys"`
			Results       []struct {
				DimensionValues []string    `json:"dimension_values"`
				Value           json.Number `json:"value"`
			} `json:"results"`
		} `json:"breakdowns"`
	} `json:"total_value"`
}

// demographics requests lifetime follower_demographics once per breakdown.
func (f *instagramFetcher) demographics(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	if err := requireAccount(req); err != nil {
		return nil, err
	}
	out := []report.Row{}
	for _, breakdown := range demographicBreakdowns {
		var body insightsResponse
		q := url.Values{
			"metric":      {"follower_demographics"},
			"period":      {"lifetime"},
			"metric_type": {"total_value"},
			"breakdown":   {breakdown},
		}
		if err := f.graph.Get(ctx, req.ResourceID+"/insights", req.AccessToken, q, &body); err != nil {
			return nil, err
		}
		rows, err := demographicRows(d, breakdown, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func demographicRows(d *report.Descriptor, breakdown string, body insightsResponse) ([]report.Row, error) {
	var out []report.Row
	seen := map[string]bool{}
	for _, m := range body.Data {
		if m.TotalValue == nil {
			continue
		}
		for _, b := range m.TotalValue.Breakdowns {
			for _, r := range b.Results {
				if len(r.DimensionValues) == 0 || seen[r.DimensionValues[0]] {
					continue
				}
				label := r.DimensionValues[0]
				seen[label] = true
				row, err := report.Normalize(d, map[string]any{"breakdown": breakdown, "label": label, "value": number(r.Value)})
				if err != nil {
					return nil, err
				}
				out = append(out, row)
			}
		}
	}
	return out, nil
}

// insights requests the last 28 days: series metrics per day, the rest as
// one window total stamped with the window end.
func (f *instagramFetcher) insights(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	if err := requireAccount(req); err != nil {
		return nil, err
	}
	until := f.now().UTC().Truncate(24 * time.Hour)
	since := until.Add(-insightsWindow)
	window := url.Values{
		"period": {"day"},
		"since":  {strconv.FormatInt(since.Unix(), 10)},
		"until":  {strconv.FormatInt(until.Unix(), 10)},
	}

	var series insightsResponse
	q := cloneValues(window)
	q.Set("metric", strings.Join(seriesMetrics, ","))
	if err := f.graph.Get(ctx, req.ResourceID+"/insights", req.AccessToken, q, &series); err != nil {
		return nil, err
	}

	var totals insightsResponse
	q = cloneValues(window)
	q.Set("metric", strings.Join(totalMetrics, ","))
	q.Set("metric_type", "total_value")
	if err := f.graph.Get(ctx, req.ResourceID+"/insights", req.AccessToken, q, &totals); err != nil {
		return nil, err
	}

	series.Data = append(series.Data, totals.Data...)
	return insightRows(d, series, until)
}

// insightRows flattens both the "values" series shape and the
// "total_value" shape. Totals are stamped with windowEnd.
func insightRows(d *report.Descriptor, body insightsResponse, windowEnd time.Time) ([]report.Row, error) {
	out := []report.Row{}
	seen := map[string]bool{}
	add := func(metric string, value json.Number, endTime any) error {
		row, err := report.Normalize(d, map[string]any{"metric": metric, "value": number(value), "end_time": endTime})
		if err != nil {
			return err
		}
		k := fmt.Sprintf("%s|%v", metric, row["end_time"])
		if seen[k] {
			return nil
		}
		seen[k] = true
		out = append(out, row)
		return nil
	}

	for _, m := range body.Data {
		if m.TotalValue != nil {
			if err := add(m.Name, m.TotalValue.Value, windowEnd); err != nil {
				return nil, err
			}
			continue
		}
		for _, v := range m.Values {
			if v.EndTime == "" {
				continue
			}
			if err := add(m.Name, v.Value, v.EndTime); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// number maps an absent value to nil so it normalizes to zero.
func number(n json.Number) any {
	if n == "" {
		return nil
	}
	return n
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
