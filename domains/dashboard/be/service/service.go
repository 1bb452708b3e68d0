package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/infofluencer/infofluencer/domains/dashboard/be/repo"
	"github.com/infofluencer/infofluencer/platform/go/report"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

const (
	topLocations        = 5
	topOperatingSystems = 10
	topVideos           = 10
	postingWindow       = 30 * 24 * time.Hour
)

// Service computes dashboard views from materialized report rows.
type Service interface {
	Overview(ctx context.Context, tenantID uuid.UUID) (Overview, error)
	Audience(ctx context.Context, tenantID uuid.UUID) (Audience, error)
	AudienceCombined(ctx context.Context, tenantID uuid.UUID) (CombinedAudience, error)
	Traffic(ctx context.Context, tenantID uuid.UUID) (Traffic, error)
	YouTube(ctx context.Context, tenantID uuid.UUID) (YouTube, error)
	InfluencerOverview(ctx context.Context, profile tenant.InfluencerProfile) (InfluencerOverview, error)
}

// Config tunes the service.
type Config struct {
	Now func() time.Time
}

type service struct {
	repo repo.Repository
	now  func() time.Time
}

// New constructs a dashboard Service.
func New(r repo.Repository, cfg Config) Service {
	if r == nil {
		panic("dashboard repository is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &service{repo: r, now: cfg.Now}
}

// Overview summarizes GA4 acquisition and session data.
type Overview struct {
	Available      bool    `json:"available"`
	TotalSessions  int64   `json:"total_sessions"`
	ActiveUsers    int64   `json:"active_users"`
	EngagementRate float64 `json:"engagement_rate"`
	BounceRate     float64 `json:"bounce_rate"`
}

// AgeGroup is one row of an age distribution.
type AgeGroup struct {
	AgeGroup           string  `json:"age_group"`
	Users              float64 `json:"users"`
	Sessions           float64 `json:"sessions"`
	EngagementDuration float64 `json:"engagement_duration"`
}

// GenderGroup is one row of a gender distribution.
type GenderGroup struct {
	Gender         string  `json:"gender"`
	Sessions       float64 `json:"sessions"`
	EngagementRate float64 `json:"engagement_rate"`
}

// CountryGroup is one row of a geographic distribution.
type CountryGroup struct {
	Country    string  `json:"country"`
	Users      float64 `json:"users"`
	Sessions   float64 `json:"sessions"`
	BounceRate float64 `json:"bounce_rate"`
}

// CityGroup is one row of a city distribution.
type CityGroup struct {
	City     string  `json:"city"`
	Users    float64 `json:"users"`
	Sessions float64 `json:"sessions"`
}

// Audience holds GA4 demographics in absolute numbers.
type Audience struct {
	AgeDistribution        []AgeGroup     `json:"age_distribution"`
	GenderDistribution     []GenderGroup  `json:"gender_distribution"`
	GeographicDistribution []CountryGroup `json:"geographic_distribution"`
}

// CombinedAudience holds GA4 and YouTube demographics blended into percentages.
type CombinedAudience struct {
	AgeDistribution        []AgeGroup     `json:"age_distribution"`
	GenderDistribution     []GenderGroup  `json:"gender_distribution"`
	GeographicDistribution []CountryGroup `json:"geographic_distribution"`
	CityDistribution       []CityGroup    `json:"city_distribution"`
	Sources                []string       `json:"sources"`
}

// AcquisitionChannel is one GA4 first-user source.
type AcquisitionChannel struct {
	Source                 string  `json:"source"`
	NewUsers               int64   `json:"new_users"`
	Sessions               int64   `json:"sessions"`
	EngagementRate         float64 `json:"engagement_rate"`
	Conversions            int64   `json:"conversions"`
	UserEngagementDuration float64 `json:"user_engagement_duration"`
}

// SessionSource is one GA4 session source/medium pair.
type SessionSource struct {
	SourceMedium   string  `json:"source_medium"`
	Sessions       int64   `json:"sessions"`
	Conversions    int64   `json:"conversions"`
	EngagementRate float64 `json:"engagement_rate"`
	BounceRate     float64 `json:"bounce_rate"`
}

// Device is one GA4 device category.
type Device struct {
	Category   string  `json:"category"`
	Users      int64   `json:"users"`
	Sessions   int64   `json:"sessions"`
	BounceRate float64 `json:"bounce_rate"`
}

// OperatingSystem is one GA4 operating system.
type OperatingSystem struct {
	OS             string  `json:"os"`
	Users          int64   `json:"users"`
	Sessions       int64   `json:"sessions"`
	EngagementRate float64 `json:"engagement_rate"`
}

// Technology groups device and OS breakdowns.
type Technology struct {
	Devices          []Device          `json:"devices"`
	OperatingSystems []OperatingSystem `json:"operating_systems"`
}

// Traffic holds GA4 acquisition and technology breakdowns.
type Traffic struct {
	AcquisitionChannels []AcquisitionChannel `json:"acquisition_channels"`
	SessionSources      []SessionSource      `json:"session_sources"`
	Technology          Technology           `json:"technology_breakdown"`
}

// ViewShare is one category of a YouTube views distribution.
type ViewShare struct {
	Label               string  `json:"label"`
	Views               int64   `json:"views"`
	Share               float64 `json:"share"`
	AverageViewDuration float64 `json:"average_view_duration"`
	MinutesWatched      float64 `json:"estimated_minutes_watched"`
}

// Video is one subscriber-gaining video.
type Video struct {
	VideoID           string `json:"video_id"`
	SubscribersGained int64  `json:"subscribers_gained"`
	SubscribersLost   int64  `json:"subscribers_lost"`
	NetSubscribers    int64  `json:"net_subscribers"`
	Views             int64  `json:"views"`
}

// YouTube holds channel-level YouTube Analytics breakdowns.
type YouTube struct {
	Available      bool        `json:"available"`
	TotalViews     int64       `json:"total_views"`
	TrafficSources []ViewShare `json:"traffic_sources"`
	Devices        []ViewShare `json:"devices"`
	TopVideos      []Video     `json:"top_videos"`
}

// InfluencerProfile echoes the caller's profile fields.
type InfluencerProfile struct {
	Email            string `json:"email"`
	InstagramHandle  string `json:"instagram_handle"`
	YouTubeChannelID string `json:"youtube_channel_id"`
}

// InstagramAccount is the stored Instagram profile snapshot.
type InstagramAccount struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Name              string `json:"name"`
	Biography         string `json:"biography"`
	Website           string `json:"website"`
	ProfilePictureURL string `json:"profile_picture_url"`
	FollowersCount    int64  `json:"followers_count"`
	FollowsCount      int64  `json:"follows_count"`
	MediaCount        int64  `json:"media_count"`
}

// Media is one recent post.
type Media struct {
	ID            string     `json:"id"`
	MediaType     string     `json:"media_type"`
	Caption       string     `json:"caption"`
	Permalink     string     `json:"permalink"`
	PostedAt      *time.Time `json:"posted_at,omitempty"`
	LikeCount     int64      `json:"like_count"`
	CommentsCount int64      `json:"comments_count"`
}

// CalculatedMetrics are derived from the Instagram snapshot and insights.
type CalculatedMetrics struct {
	EngagementRate      float64 `json:"engagement_rate"`
	FollowersGrowth     int64   `json:"followers_growth"`
	FollowersGrowthRate float64 `json:"followers_growth_rate"`
	PostsLast30Days     int     `json:"posts_last_30_days"`
	PostingFrequency    float64 `json:"posting_frequency"`
	AverageLikes        float64 `json:"average_likes_per_post"`
	AverageComments     float64 `json:"average_comments_per_post"`
	InfluencerScore     float64 `json:"influencer_score"`
}

// Demographics holds follower breakdowns and their leading values.
type Demographics struct {
	Age     []Bucket          `json:"age"`
	City    []Bucket          `json:"city"`
	Country []Bucket          `json:"country"`
	Gender  []Bucket          `json:"gender"`
	Top     map[string]string `json:"top"`
}

// InfluencerOverview is the influencer dashboard.
type InfluencerOverview struct {
	Profile      InfluencerProfile  `json:"profile"`
	Instagram    *InstagramAccount  `json:"instagram"`
	Insights     map[string]float64 `json:"insights"`
	Metrics      CalculatedMetrics  `json:"calculated_metrics"`
	Demographics Demographics       `json:"demographics"`
	RecentMedia  []Media            `json:"recent_media"`
}

func (s *service) list(ctx context.Context, tenantID uuid.UUID, t report.Type) ([]report.Row, error) {
	rows, err := s.repo.List(ctx, tenantID, t)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", t, err)
	}
	return rows, nil
}

func (s *service) Overview(ctx context.Context, tenantID uuid.UUID) (Overview, error) {
	acquisition, err := s.list(ctx, tenantID, report.GA4UserAcquisitionSource)
	if err != nil {
		return Overview{}, err
	}
	if len(acquisition) == 0 {
		return Overview{}, nil
	}
	sessions, err := s.list(ctx, tenantID, report.GA4SessionSourceMedium)
	if err != nil {
		return Overview{}, err
	}
	return Overview{
		Available:      true,
		TotalSessions:  int64(Sum(acquisition, "sessions")),
		ActiveUsers:    int64(Sum(acquisition, "new_users")),
		EngagementRate: Round(Avg(acquisition, "engagement_rate")*100, 1),
		BounceRate:     Round(Avg(sessions, "bounce_rate")*100, 1),
	}, nil
}

func (s *service) Audience(ctx context.Context, tenantID uuid.UUID) (Audience, error) {
	ages, err := s.list(ctx, tenantID, report.GA4Age)
	if err != nil {
		return Audience{}, err
	}
	genders, err := s.list(ctx, tenantID, report.GA4UserGender)
	if err != nil {
		return Audience{}, err
	}
	countries, err := s.list(ctx, tenantID, report.GA4Country)
	if err != nil {
		return Audience{}, err
	}

	out := Audience{
		AgeDistribution:        make([]AgeGroup, 0, len(ages)),
		GenderDistribution:     make([]GenderGroup, 0, len(genders)),
		GeographicDistribution: make([]CountryGroup, 0, len(countries)),
	}
	for _, row := range SortDesc(ages, byCol("active_users")) {
		out.AgeDistribution = append(out.AgeDistribution, AgeGroup{
			AgeGroup:           row.String("age"),
			Users:              row.Float("active_users"),
			Sessions:           row.Float("sessions"),
			EngagementDuration: Round(row.Float("user_engagement_duration"), 1),
		})
	}
	for _, row := range genders {
		out.GenderDistribution = append(out.GenderDistribution, GenderGroup{
			Gender:         row.String("gender"),
			Sessions:       row.Float("sessions"),
			EngagementRate: Round(row.Float("engagement_rate"), 2),
		})
	}
	for _, row := range SortDesc(countries, byCol("active_users")) {
		out.GeographicDistribution = append(out.GeographicDistribution, CountryGroup{
			Country:    row.String("country"),
			Users:      row.Float("active_users"),
			Sessions:   row.Float("sessions"),
			BounceRate: Round(row.Float("bounce_rate"), 2),
		})
	}
	return out, nil
}

func (s *service) AudienceCombined(ctx context.Context, tenantID uuid.UUID) (CombinedAudience, error) {
	ga4Ages, err := s.list(ctx, tenantID, report.GA4Age)
	if err != nil {
		return CombinedAudience{}, err
	}
	ga4Genders, err := s.list(ctx, tenantID, report.GA4UserGender)
	if err != nil {
		return CombinedAudience{}, err
	}
	ytAudience, err := s.list(ctx, tenantID, report.YouTubeAgeGroup)
	if err != nil {
		return CombinedAudience{}, err
	}
	countries, err := s.list(ctx, tenantID, report.GA4Country)
	if err != nil {
		return CombinedAudience{}, err
	}
	cities, err := s.list(ctx, tenantID, report.GA4City)
	if err != nil {
		return CombinedAudience{}, err
	}

	out := CombinedAudience{Sources: []string{}}
	if len(ga4Ages)+len(ga4Genders)+len(countries)+len(cities) > 0 {
		out.Sources = append(out.Sources, string(report.ProviderGA4))
	}
	if len(ytAudience) > 0 {
		out.Sources = append(out.Sources, string(report.ProviderYouTube))
	}

	ytAges := map[string]float64{}
	ytGenders := map[string]float64{}
	for _, row := range ytAudience {
		pct := row.Float("viewer_percentage")
		if age := youtubeAgeBracket(row.String("age_group")); IsKnown(age) {
			ytAges[age] += pct
		}
		if gender := strings.ToLower(row.String("gender")); IsKnown(gender) {
			ytGenders[gender] += pct
		}
	}

	ageUsers := map[string]float64{}
	ageSessions := map[string]float64{}
	ageDuration := map[string]float64{}
	for _, row := range ga4Ages {
		age := row.String("age")
		if !IsKnown(age) {
			continue
		}
		ageUsers[age] = row.Float("active_users")
		ageSessions[age] = row.Float("sessions")
		ageDuration[age] = row.Float("user_engagement_duration")
	}
	users := Buckets(Blend(ageUsers, ytAges))
	sessions := Blend(ageSessions, ytAges)
	var sessionTotal float64
	for _, v := range sessions {
		sessionTotal += v
	}
	userShares := PercentDistribution(users)
	out.AgeDistribution = make([]AgeGroup, 0, len(userShares))
	for _, b := range userShares {
		out.AgeDistribution = append(out.AgeDistribution, AgeGroup{
			AgeGroup:           b.Label,
			Users:              b.Value,
			Sessions:           Percent(sessions[b.Label], sessionTotal),
			EngagementDuration: Round(ageDuration[b.Label], 1),
		})
	}

	genderSessions := map[string]float64{}
	genderEngagement := map[string]float64{}
	for _, row := range ga4Genders {
		gender := strings.ToLower(row.String("gender"))
		if !IsKnown(gender) {
			continue
		}
		genderSessions[gender] = row.Float("sessions")
		genderEngagement[gender] = row.Float("engagement_rate")
	}
	genderShares := SortDesc(PercentDistribution(Buckets(Blend(genderSessions, ytGenders))), func(b Bucket) float64 { return b.Value })
	out.GenderDistribution = make([]GenderGroup, 0, len(genderShares))
	for _, b := range genderShares {
		out.GenderDistribution = append(out.GenderDistribution, GenderGroup{
			Gender:         b.Label,
			Sessions:       b.Value,
			EngagementRate: Round(genderEngagement[b.Label], 2),
		})
	}

	topCountries := TopN(known(countries, "country"), topLocations, byCol("active_users"))
	countryUsers, countrySessions := Sum(topCountries, "active_users"), Sum(topCountries, "sessions")
	out.GeographicDistribution = make([]CountryGroup, 0, len(topCountries))
	for _, row := range topCountries {
		out.GeographicDistribution = append(out.GeographicDistribution, CountryGroup{
			Country:    row.String("country"),
			Users:      Percent(row.Float("active_users"), countryUsers),
			Sessions:   Percent(row.Float("sessions"), countrySessions),
			BounceRate: Round(row.Float("bounce_rate"), 2),
		})
	}

	topCities := TopN(known(cities, "city"), topLocations, byCol("active_users"))
	cityUsers, citySessions := Sum(topCities, "active_users"), Sum(topCities, "sessions")
	out.CityDistribution = make([]CityGroup, 0, len(topCities))
	for _, row := range topCities {
		out.CityDistribution = append(out.CityDistribution, CityGroup{
			City:     row.String("city"),
			Users:    Percent(row.Float("active_users"), cityUsers),
			Sessions: Percent(row.Float("sessions"), citySessions),
		})
	}
	return out, nil
}

func (s *service) Traffic(ctx context.Context, tenantID uuid.UUID) (Traffic, error) {
	acquisition, err := s.list(ctx, tenantID, report.GA4UserAcquisitionSource)
	if err != nil {
		return Traffic{}, err
	}
	sessions, err := s.list(ctx, tenantID, report.GA4SessionSourceMedium)
	if err != nil {
		return Traffic{}, err
	}
	devices, err := s.list(ctx, tenantID, report.GA4DeviceCategory)
	if err != nil {
		return Traffic{}, err
	}
	systems, err := s.list(ctx, tenantID, report.GA4OperatingSystem)
	if err != nil {
		return Traffic{}, err
	}

	out := Traffic{
		AcquisitionChannels: make([]AcquisitionChannel, 0, len(acquisition)),
		SessionSources:      make([]SessionSource, 0, len(sessions)),
		Technology: Technology{
			Devices:          make([]Device, 0, len(devices)),
			OperatingSystems: []OperatingSystem{},
		},
	}
	for _, row := range SortDesc(acquisition, byCol("new_users")) {
		out.AcquisitionChannels = append(out.AcquisitionChannels, AcquisitionChannel{
			Source:                 row.String("acquisition_source"),
			NewUsers:               row.Int("new_users"),
			Sessions:               row.Int("sessions"),
			EngagementRate:         Round(row.Float("engagement_rate"), 2),
			Conversions:            row.Int("conversions"),
			UserEngagementDuration: Round(row.Float("user_engagement_duration"), 1),
		})
	}
	for _, row := range SortDesc(sessions, byCol("sessions")) {
		out.SessionSources = append(out.SessionSources, SessionSource{
			SourceMedium:   row.String("session_source_medium"),
			Sessions:       row.Int("sessions"),
			Conversions:    row.Int("conversions"),
			EngagementRate: Round(row.Float("engagement_rate"), 2),
			BounceRate:     Round(row.Float("bounce_rate"), 2),
		})
	}
	for _, row := range devices {
		out.Technology.Devices = append(out.Technology.Devices, Device{
			Category:   row.String("device_category"),
			Users:      row.Int("active_users"),
			Sessions:   row.Int("engaged_sessions"),
			BounceRate: Round(row.Float("bounce_rate"), 2),
		})
	}
	for _, row := range TopN(systems, topOperatingSystems, byCol("active_users")) {
		out.Technology.OperatingSystems = append(out.Technology.OperatingSystems, OperatingSystem{
			OS:             row.String("operating_system"),
			Users:          row.Int("active_users"),
			Sessions:       row.Int("engaged_sessions"),
			EngagementRate: Round(row.Float("engagement_rate"), 2),
		})
	}
	return out, nil
}

func (s *service) YouTube(ctx context.Context, tenantID uuid.UUID) (YouTube, error) {
	traffic, err := s.list(ctx, tenantID, report.YouTubeTrafficSource)
	if err != nil {
		return YouTube{}, err
	}
	devices, err := s.list(ctx, tenantID, report.YouTubeDeviceType)
	if err != nil {
		return YouTube{}, err
	}
	videos, err := s.list(ctx, tenantID, report.YouTubeTopSubscribers)
	if err != nil {
		return YouTube{}, err
	}

	out := YouTube{
		Available:      len(traffic)+len(devices)+len(videos) > 0,
		TotalViews:     int64(Sum(traffic, "views")),
		TrafficSources: viewShares(traffic, "insight_traffic_source_type"),
		Devices:        viewShares(devices, "device_type"),
		TopVideos:      make([]Video, 0, topVideos),
	}
	for _, row := range TopN(videos, topVideos, byCol("subscribers_gained")) {
		gained, lost := row.Int("subscribers_gained"), row.Int("subscribers_lost")
		out.TopVideos = append(out.TopVideos, Video{
			VideoID:           row.String("video_id"),
			SubscribersGained: gained,
			SubscribersLost:   lost,
			NetSubscribers:    gained - lost,
			Views:             row.Int("views"),
		})
	}
	return out, nil
}

func viewShares(rows []report.Row, labelCol string) []ViewShare {
	rows = SortDesc(rows, byCol("views"))
	total := Sum(rows, "views")
	out := make([]ViewShare, 0, len(rows))
	for _, row := range rows {
		out = append(out, ViewShare{
			Label:               row.String(labelCol),
			Views:               row.Int("views"),
			Share:               Percent(row.Float("views"), total),
			AverageViewDuration: Round(row.Float("average_view_duration"), 1),
			MinutesWatched:      Round(row.Float("estimated_minutes_watched"), 1),
		})
	}
	return out
}

func (s *service) InfluencerOverview(ctx context.Context, profile tenant.InfluencerProfile) (InfluencerOverview, error) {
	tenantID := profile.TenantID
	profiles, err := s.list(ctx, tenantID, report.InstagramProfile)
	if err != nil {
		return InfluencerOverview{}, err
	}
	media, err := s.list(ctx, tenantID, report.InstagramMedia)
	if err != nil {
		return InfluencerOverview{}, err
	}
	insights, err := s.list(ctx, tenantID, report.InstagramInsights)
	if err != nil {
		return InfluencerOverview{}, err
	}
	demographics, err := s.list(ctx, tenantID, report.InstagramDemographics)
	if err != nil {
		return InfluencerOverview{}, err
	}

	out := InfluencerOverview{
		Profile: InfluencerProfile{
			Email:            profile.Email,
			InstagramHandle:  profile.InstagramHandle,
			YouTubeChannelID: profile.YouTubeChannelID,
		},
		Insights:     insightTotals(insights),
		Demographics: demographicBreakdowns(demographics),
		RecentMedia:  recentMedia(media),
	}
	var followers int64
	if len(profiles) > 0 {
		account := instagramAccount(profiles[0])
		followers = account.FollowersCount
		out.Instagram = &account
	}
	out.Metrics = s.calculate(followers, out.Insights, followerSeries(insights), out.RecentMedia)
	return out, nil
}

func (s *service) calculate(followers int64, totals map[string]float64, series []float64, media []Media) CalculatedMetrics {
	var m CalculatedMetrics
	if reach := totals["reach"]; reach > 0 {
		m.EngagementRate = Round(totals["total_interactions"]/reach*100, 2)
	}
	if len(series) >= 2 {
		first, last := series[0], series[len(series)-1]
		m.FollowersGrowth = int64(last - first)
		if first > 0 {
			m.FollowersGrowthRate = Round((last-first)/first*100, 2)
		}
	}

	cutoff := s.now().Add(-postingWindow)
	var likes, comments int64
	for _, item := range media {
		likes += item.LikeCount
		comments += item.CommentsCount
		if item.PostedAt != nil && !item.PostedAt.Before(cutoff) {
			m.PostsLast30Days++
		}
	}
	m.PostingFrequency = Round(float64(m.PostsLast30Days)/30, 2)
	if len(media) > 0 {
		m.AverageLikes = Round(float64(likes)/float64(len(media)), 2)
		m.AverageComments = Round(float64(comments)/float64(len(media)), 2)
	}
	if followers > 0 {
		m.InfluencerScore = Round(float64(followers)/1000*m.EngagementRate, 2)
	}
	return m
}

func instagramAccount(row report.Row) InstagramAccount {
	return InstagramAccount{
		ID:                row.String("ig_user_id"),
		Username:          row.String("username"),
		Name:              row.String("name"),
		Biography:         row.String("biography"),
		Website:           row.String("website"),
		ProfilePictureURL: row.String("profile_picture_url"),
		FollowersCount:    row.Int("followers_count"),
		FollowsCount:      row.Int("follows_count"),
		MediaCount:        row.Int("media_count"),
	}
}

func recentMedia(rows []report.Row) []Media {
	out := make([]Media, 0, len(rows))
	for _, row := range rows {
		item := Media{
			ID:            row.String("media_id"),
			MediaType:     row.String("media_type"),
			Caption:       row.String("caption"),
			Permalink:     row.String("permalink"),
			LikeCount:     row.Int("like_count"),
			CommentsCount: row.Int("comments_count"),
		}
		if at := row.Time("posted_at"); !at.IsZero() {
			item.PostedAt = &at
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].PostedAt, out[j].PostedAt
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		return a.After(*b)
	})
	return out
}

func insightTotals(rows []report.Row) map[string]float64 {
	out := map[string]float64{}
	for _, row := range rows {
		out[row.String("metric")] += row.Float("value")
	}
	return out
}

// followerSeries returns daily follower_count values oldest first.
func followerSeries(rows []report.Row) []float64 {
	var points []report.Row
	for _, row := range rows {
		if row.String("metric") == "follower_count" {
			points = append(points, row)
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time("end_time").Before(points[j].Time("end_time")) })
	out := make([]float64, len(points))
	for i, row := range points {
		out[i] = row.Float("value")
	}
	return out
}

func demographicBreakdowns(rows []report.Row) Demographics {
	groups := map[string][]Bucket{"age": {}, "city": {}, "country": {}, "gender": {}}
	for _, row := range rows {
		label := row.String("label")
		if !IsKnown(label) {
			continue
		}
		breakdown := row.String("breakdown")
		groups[breakdown] = append(groups[breakdown], Bucket{Label: label, Value: row.Float("value")})
	}
	byValue := func(b Bucket) float64 { return b.Value }
	out := Demographics{
		Age:     SortDesc(groups["age"], byValue),
		City:    SortDesc(groups["city"], byValue),
		Country: SortDesc(groups["country"], byValue),
		Gender:  SortDesc(groups["gender"], byValue),
	}
	out.Top = map[string]string{
		"age":     Top(out.Age),
		"city":    Top(out.City),
		"country": Top(out.Country),
		"gender":  Top(out.Gender),
	}
	return out
}

func known(rows []report.Row, col string) []report.Row {
	out := make([]report.Row, 0, len(rows))
	for _, row := range rows {
		if IsKnown(row.String(col)) {
			out = append(out, row)
		}
	}
	return out
}

func byCol(col string) func(report.Row) float64 {
	return func(r report.Row) float64 { return r.Float(col) }
}

// youtubeAgeBracket maps YouTube age groups ("age18-24", "age65-") onto GA4
// brackets ("18-24", "65+").
func youtubeAgeBracket(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "age")
	if strings.HasSuffix(v, "-") {
		return strings.TrimSuffix(v, "-") + "+"
	}
	return v
}
