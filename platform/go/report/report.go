// Package report defines the closed set of provider report types and the
// column layout each one is fetched into, validated against and stored as.
package report

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedReportType is returned when a (provider, name) pair does
	// not name a known report type.
	ErrUnsupportedReportType = errors.New("unsupported report type")
	// ErrUnsupportedProvider is returned for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Provider identifies a third-party analytics platform.
type Provider string

const (
	ProviderGA4       Provider = "ga4"
	ProviderYouTube   Provider = "youtube"
	ProviderInstagram Provider = "instagram"
)

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{ProviderGA4, ProviderYouTube, ProviderInstagram}
}

// ParseProvider validates a provider path segment.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case ProviderGA4, ProviderYouTube, ProviderInstagram:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// DisplayName is used in user-facing messages.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGA4:
		return "Google Analytics 4"
	case ProviderYouTube:
		return "YouTube Analytics"
	case ProviderInstagram:
		return "Instagram"
	default:
		return string(p)
	}
}

// NeedsResource reports whether fetching requires a provider resource id
// (GA4 property, Instagram business account). YouTube queries channel==MINE.
func (p Provider) NeedsResource() bool {
	return p == ProviderGA4 || p == ProviderInstagram
}

// Type is a report type. The zero value is invalid.
type Type int

const (
	GA4UserAcquisitionSource Type = iota + 1
	GA4SessionSourceMedium
	GA4OperatingSystem
	GA4UserGender
	GA4DeviceCategory
	GA4Country
	GA4City
	GA4Age
	YouTubeTrafficSource
	YouTubeDeviceType
	YouTubeAgeGroup
	YouTubeTopSubscribers
	InstagramProfile
	InstagramMedia
	InstagramDemographics
	InstagramInsights

	typeSentinel
)

// AllTypes lists every report type in declaration order.
func AllTypes() []Type {
	out := make([]Type, 0, int(typeSentinel)-1)
	for t := GA4UserAcquisitionSource; t < typeSentinel; t++ {
		out = append(out, t)
	}
	return out
}

// TypesFor lists the report types of one provider.
func TypesFor(p Provider) []Type {
	var out []Type
	for _, t := range AllTypes() {
		if t.Provider() == p {
			out = append(out, t)
		}
	}
	return out
}

// Valid reports whether t is a declared report type.
func (t Type) Valid() bool {
	return t > 0 && t < typeSentinel
}

// Descriptor returns the layout of t. It panics for invalid types, which can
// only be produced by converting arbitrary integers.
func (t Type) Descriptor() *Descriptor {
	if !t.Valid() {
		panic(fmt.Sprintf("report: invalid type %d", int(t)))
	}
	return catalog[t]
}

func (t Type) Provider() Provider { return t.Descriptor().Provider }

// Name is the wire name used in URLs and API payloads ("country", "ageGroup").
func (t Type) Name() string { return t.Descriptor().Name }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("report.Type(%d)", int(t))
	}
	return string(t.Provider()) + "/" + t.Name()
}

// Parse resolves a (provider, name) pair at the API boundary. Names match
// case-insensitively and accept snake_case aliases ("device_category").
func Parse(p Provider, name string) (Type, error) {
	want := normalizeName(name)
	for _, t := range TypesFor(p) {
		d := t.Descriptor()
		if normalizeName(d.Name) == want {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %s/%s", ErrUnsupportedReportType, p, name)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
}

// ProviderAPIError carries a provider's failure response for diagnostics.
type ProviderAPIError struct {
	Provider   Provider
	StatusCode int
	Message    string
	Payload    []byte
}

func (e *ProviderAPIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s api error: %s", e.Provider, e.Message)
}
