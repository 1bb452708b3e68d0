package report

// FetchResult is the outcome of one report type within a bulk fetch.
type FetchResult struct {
	ReportType string `json:"report_type"`
	Rows       int    `json:"rows"`
	Error      string `json:"error,omitempty"`
}

// FetchSummary collects per-type outcomes for a provider-wide fetch.
type FetchSummary struct {
	Provider Provider      `json:"provider"`
	Results  []FetchResult `json:"results"`
}

// Failed counts results carrying an error.
func (s FetchSummary) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
