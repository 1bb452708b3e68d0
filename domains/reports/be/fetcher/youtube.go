package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/youtubeanalytics/v2"

	"github.com/infofluencer/infofluencer/platform/go/gcp"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

const youtubeChannel = "channel==MINE"

type youtubeFetcher struct {
	client   *http.Client
	endpoint string
}

// fetch runs reports.query for the authenticated channel over the fixed
// YouTube window.
func (y *youtubeFetcher) fetch(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	svc, err := youtubeanalytics.NewService(ctx, gcp.ClientOptions(ctx, y.client, gcp.StaticToken(req.AccessToken), y.endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}

	call := svc.Reports.Query().
		Ids(youtubeChannel).
		StartDate(report.YouTubeStartDate).
		EndDate(report.YouTubeEndDate).
		Dimensions(strings.Join(sources(d.KeyColumns()), ",")).
		Metrics(strings.Join(sources(d.MetricColumns()), ","))
	if d.Sort != "" {
		call = call.Sort(d.Sort)
	}
	if d.Limit > 0 {
		call = call.MaxResults(int64(d.Limit))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, googleError(report.ProviderYouTube, err)
	}
	return youtubeRows(d, resp)
}

// youtubeRows maps the column-oriented result table onto rows keyed by
// column header.
func youtubeRows(d *report.Descriptor, resp *youtubeanalytics.QueryResponse) ([]report.Row, error) {
	out := make([]report.Row, 0, len(resp.Rows))
	for _, values := range resp.Rows {
		raw := make(map[string]any, len(resp.ColumnHeaders))
		for i, h := range resp.ColumnHeaders {
			if i < len(values) {
				raw[h.Name] = values[i]
			}
		}
		row, err := report.Normalize(d, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

func sources(cols []report.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Source
	}
	return out
}
