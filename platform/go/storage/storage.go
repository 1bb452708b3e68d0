package storage

import (
	"fmt"
	"strings"
	"time"
)

// ObjectLocation describes where a blob should live.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveObjectLocation combines a tenant base prefix and a tenant-relative
// key into a bucket/path pair.
//   - bucket comes from deployment configuration.
//   - basePrefix is tenant.BuildBasePrefix output, e.g. "dev/company-1f0c2a4b/".
//   - logicalKey is relative, e.g. "reports/ga4/country/20250527T101500Z.json".
func ResolveObjectLocation(basePrefix, bucket, logicalKey string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("bucket is required")
	}
	key := strings.TrimPrefix(strings.TrimSpace(logicalKey), "/")
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("logical key is required")
	}

	prefix := strings.TrimSpace(basePrefix)
	if prefix == "" {
		return ObjectLocation{}, fmt.Errorf("tenant base prefix is missing")
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return ObjectLocation{Bucket: bucket, FullPath: prefix + key}, nil
}

// SnapshotKey is the logical key of one fetched report snapshot.
func SnapshotKey(provider, reportType string, at time.Time) string {
	return "reports/" + provider + "/" + reportType + "/" + at.UTC().Format("20060102T150405Z") + ".json"
}
