package service

import (
	"math"
	"sort"
	"strings"

	"github.com/infofluencer/infofluencer/platform/go/report"
)

// Placeholder values providers and locales use for a missing dimension.
var unknownValues = map[string]struct{}{
	"":           {},
	"unknown":    {},
	"bilinmiyor": {},
	"bilinmeyen": {},
	"(not set)":  {},
	"not set":    {},
}

// IsKnown reports whether a dimension value carries information.
func IsKnown(v string) bool {
	_, unknown := unknownValues[strings.ToLower(strings.TrimSpace(v))]
	return !unknown
}

// Sum adds col over rows.
func Sum(rows []report.Row, col string) float64 {
	var total float64
	for _, row := range rows {
		total += row.Float(col)
	}
	return total
}

// Avg is the mean of col over rows, zero for no rows.
func Avg(rows []report.Row, col string) float64 {
	if len(rows) == 0 {
		return 0
	}
	return Sum(rows, col) / float64(len(rows))
}

// Round rounds half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Bucket is one category of a distribution.
type Bucket struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// PercentDistribution converts values into percentages of their total,
// rounded to one decimal. A zero total yields zero shares.
func PercentDistribution(items []Bucket) []Bucket {
	out := make([]Bucket, len(items))
	var total float64
	for _, it := range items {
		total += it.Value
	}
	if total == 0 {
		total = 1
	}
	for i, it := range items {
		out[i] = Bucket{Label: it.Label, Value: Round(100*it.Value/total, 1)}
	}
	return out
}

// Percent is value's share of total, rounded to one decimal.
func Percent(value, total float64) float64 {
	if total == 0 {
		total = 1
	}
	return Round(100*value/total, 1)
}

// TopN returns at most n items ordered by key descending. Ties keep input order.
func TopN[T any](items []T, n int, key func(T) float64) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// SortDesc orders items by key descending without truncating.
func SortDesc[T any](items []T, key func(T) float64) []T {
	return TopN(items, -1, key)
}

// Blend merges two per-category measurements: categories present in both
// are averaged, the rest are taken as-is. Unknown categories are dropped.
func Blend(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a)+len(b))
	for k, v := range a {
		if !IsKnown(k) {
			continue
		}
		if w, ok := b[k]; ok {
			out[k] = (v + w) / 2
			continue
		}
		out[k] = v
	}
	for k, v := range b {
		if !IsKnown(k) {
			continue
		}
		if _, ok := a[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Buckets flattens m into buckets sorted by label.
func Buckets(m map[string]float64) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, v := range m {
		out = append(out, Bucket{Label: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Top returns the label with the highest value, or "-" when empty.
func Top(items []Bucket) string {
	best := -1
	for i, it := range items {
		if best < 0 || it.Value > items[best].Value {
			best = i
		}
	}
	if best < 0 {
		return "-"
	}
	return items[best].Label
}
