package report

// Fixed reporting windows requested from the Google providers.
const (
	GA4StartDate     = "2025-01-01"
	GA4EndDate       = "2025-05-27"
	YouTubeStartDate = "2025-01-01"
	YouTubeEndDate   = "2025-06-01"
)

// ColumnKind is the storage and JSON type of a column.
type ColumnKind int

const (
	KindText ColumnKind = iota + 1
	KindInt
	KindFloat
	KindTime
)

// Column maps one provider field onto one stored column.
type Column struct {
	// Name is the snake_case column and row-dict key.
	Name string
	// Source is the provider field: GA4 dimension/metric, YouTube column
	// header or Graph API JSON field.
	Source string
	Kind   ColumnKind
	// Key columns are dimensions; (tenant, keys...) is unique.
	Key bool
	// Nullable columns may be missing from a provider payload.
	Nullable bool
}

// Descriptor is the static definition of one report type.
type Descriptor struct {
	Type     Type
	Provider Provider
	Name     string
	Table    string
	Columns  []Column
	// Sort and Limit are passed to providers that support them.
	Sort  string
	Limit int
}

// KeyColumns returns the dimension columns.
func (d *Descriptor) KeyColumns() []Column {
	var out []Column
	for _, c := range d.Columns {
		if c.Key {
			out = append(out, c)
		}
	}
	return out
}

// MetricColumns returns the non-key columns.
func (d *Descriptor) MetricColumns() []Column {
	var out []Column
	for _, c := range d.Columns {
		if !c.Key {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNames returns column names in declaration order.
func (d *Descriptor) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

func dim(source, name string) Column {
	if name == "" {
		name = CamelToSnake(source)
	}
	return Column{Name: name, Source: source, Kind: KindText, Key: true}
}

func count(source string) Column {
	return Column{Name: CamelToSnake(source), Source: source, Kind: KindInt}
}

func ratio(source string) Column {
	return Column{Name: CamelToSnake(source), Source: source, Kind: KindFloat}
}

func text(source, name string) Column {
	if name == "" {
		name = CamelToSnake(source)
	}
	return Column{Name: name, Source: source, Kind: KindText, Nullable: true}
}

var catalog = buildCatalog([]*Descriptor{
	{
		Type: GA4UserAcquisitionSource, Provider: ProviderGA4, Name: "userAcquisitionSource", Table: "ga4_user_acquisition_source",
		Columns: []Column{
			dim("sessionSource", "acquisition_source"),
			count("newUsers"), count("sessions"), ratio("engagementRate"), ratio("userEngagementDuration"), count("conversions"),
		},
	},
	{
		Type: GA4SessionSourceMedium, Provider: ProviderGA4, Name: "sessionSourceMedium", Table: "ga4_session_source_medium",
		Columns: []Column{
			dim("sessionSourceMedium", ""),
			count("sessions"), count("conversions"), ratio("engagementRate"), count("eventCount"), ratio("bounceRate"),
		},
	},
	{
		Type: GA4OperatingSystem, Provider: ProviderGA4, Name: "operatingSystem", Table: "ga4_operating_system",
		Columns: []Column{
			dim("operatingSystem", ""),
			count("activeUsers"), count("engagedSessions"), ratio("engagementRate"), ratio("userEngagementDuration"), count("eventCount"), ratio("bounceRate"),
		},
	},
	{
		Type: GA4UserGender, Provider: ProviderGA4, Name: "userGender", Table: "ga4_user_gender",
		Columns: []Column{
			dim("userGender", "gender"),
			count("activeUsers"), count("sessions"), ratio("engagementRate"), ratio("userEngagementDuration"), count("eventCount"),
		},
	},
	{
		Type: GA4DeviceCategory, Provider: ProviderGA4, Name: "deviceCategory", Table: "ga4_device_category",
		Columns: []Column{
			dim("deviceCategory", ""),
			count("activeUsers"), count("engagedSessions"), ratio("engagementRate"), ratio("userEngagementDuration"), count("eventCount"), ratio("bounceRate"),
		},
	},
	{
		Type: GA4Country, Provider: ProviderGA4, Name: "country", Table: "ga4_country",
		Columns: []Column{
			dim("country", ""),
			count("activeUsers"), count("newUsers"), count("sessions"), ratio("userEngagementDuration"), count("eventCount"), ratio("engagementRate"), count("conversions"), ratio("bounceRate"),
		},
	},
	{
		Type: GA4City, Provider: ProviderGA4, Name: "city", Table: "ga4_city",
		Columns: []Column{
			dim("city", ""),
			count("activeUsers"), count("sessions"), ratio("userEngagementDuration"), count("eventCount"), count("conversions"),
		},
	},
	{
		Type: GA4Age, Provider: ProviderGA4, Name: "age", Table: "ga4_age",
		Columns: []Column{
			dim("userAgeBracket", "age"),
			count("activeUsers"), count("sessions"), ratio("userEngagementDuration"), count("eventCount"), count("conversions"),
		},
	},
	{
		Type: YouTubeTrafficSource, Provider: ProviderYouTube, Name: "trafficSource", Table: "youtube_traffic_source",
		Sort: "-views", Limit: 25,
		Columns: []Column{
			dim("insightTrafficSourceType", ""),
			count("views"), ratio("averageViewDuration"), ratio("estimatedMinutesWatched"),
		},
	},
	{
		Type: YouTubeDeviceType, Provider: ProviderYouTube, Name: "deviceType", Table: "youtube_device_type",
		Sort: "-views", Limit: 25,
		Columns: []Column{
			dim("deviceType", ""),
			count("views"), ratio("averageViewDuration"), ratio("estimatedMinutesWatched"),
		},
	},
	{
		Type: YouTubeAgeGroup, Provider: ProviderYouTube, Name: "ageGroup", Table: "youtube_age_group",
		Sort: "-viewerPercentage", Limit: 25,
		Columns: []Column{
			dim("ageGroup", ""), dim("gender", ""),
			ratio("viewerPercentage"),
		},
	},
	{
		Type: YouTubeTopSubscribers, Provider: ProviderYouTube, Name: "topSubscribers", Table: "youtube_top_subscribers",
		Sort: "-subscribersGained", Limit: 50,
		Columns: []Column{
			dim("video", "video_id"),
			count("subscribersGained"), count("subscribersLost"), count("views"),
		},
	},
	{
		Type: InstagramProfile, Provider: ProviderInstagram, Name: "profile", Table: "instagram_profile",
		Columns: []Column{
			dim("id", "ig_user_id"),
			text("username", ""), text("name", ""), text("biography", ""), text("website", ""), text("profile_picture_url", ""),
			count("followers_count"), count("follows_count"), count("media_count"),
		},
	},
	{
		Type: InstagramMedia, Provider: ProviderInstagram, Name: "media", Table: "instagram_media",
		Limit: 5,
		Columns: []Column{
			dim("id", "media_id"),
			text("media_type", ""), text("caption", ""), text("media_url", ""), text("permalink", ""),
			{Name: "posted_at", Source: "timestamp", Kind: KindTime, Nullable: true},
			count("like_count"), count("comments_count"),
		},
	},
	{
		Type: InstagramDemographics, Provider: ProviderInstagram, Name: "demographics", Table: "instagram_demographics",
		Columns: []Column{
			dim("breakdown", ""), dim("label", ""),
			count("value"),
		},
	},
	{
		Type: InstagramInsights, Provider: ProviderInstagram, Name: "insights", Table: "instagram_insights",
		Columns: []Column{
			dim("metric", ""),
			{Name: "end_time", Source: "end_time", Kind: KindTime, Key: true},
			ratio("value"),
		},
	},
})

func buildCatalog(descs []*Descriptor) map[Type]*Descriptor {
	out := make(map[Type]*Descriptor, len(descs))
	for _, d := range descs {
		if _, dup := out[d.Type]; dup {
			panic("report: duplicate descriptor for type " + d.Name)
		}
		out[d.Type] = d
	}
	for t := GA4UserAcquisitionSource; t < typeSentinel; t++ {
		if _, ok := out[t]; !ok {
			panic("report: missing descriptor")
		}
	}
	return out
}
