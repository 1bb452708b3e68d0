package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/analyticsdata/v1beta"

	"github.com/infofluencer/infofluencer/platform/go/gcp"
	"github.com/infofluencer/infofluencer/platform/go/report"
)

type ga4Fetcher struct {
	client   *http.Client
	endpoint string
}

// fetch runs a Data API runReport for the descriptor's dimensions and
// metrics over the fixed GA4 window.
func (g *ga4Fetcher) fetch(ctx context.Context, d *report.Descriptor, req Request) ([]report.Row, error) {
	if req.ResourceID == "" {
		return nil, errors.New("ga4: property id is required")
	}
	svc, err := analyticsdata.NewService(ctx, gcp.ClientOptions(ctx, g.client, gcp.StaticToken(req.AccessToken), g.endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("ga4 client: %w", err)
	}

	body := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: report.GA4StartDate, EndDate: report.GA4EndDate}},
	}
	for _, c := range d.KeyColumns() {
		body.Dimensions = append(body.Dimensions, &analyticsdata.Dimension{Name: c.Source})
	}
	for _, c := range d.MetricColumns() {
		body.Metrics = append(body.Metrics, &analyticsdata.Metric{Name: c.Source})
	}

	resp, err := svc.Properties.RunReport("properties/"+req.ResourceID, body).Context(ctx).Do()
	if err != nil {
		return nil, googleError(report.ProviderGA4, err)
	}
	return ga4Rows(d, resp)
}

// ga4Rows zips dimension and metric headers with each row's values.
func ga4Rows(d *report.Descriptor, resp *analyticsdata.RunReportResponse) ([]report.Row, error) {
	out := make([]report.Row, 0, len(resp.Rows))
	for _, r := range resp.Rows {
		raw := make(map[string]any, len(d.Columns))
		for i, h := range resp.DimensionHeaders {
			if i < len(r.DimensionValues) {
				raw[h.Name] = r.DimensionValues[i].Value
			}
		}
		for i, h := range resp.MetricHeaders {
			if i < len(r.MetricValues) {
				raw[h.Name] = r.MetricValues[i].Value
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
