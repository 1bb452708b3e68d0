package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns the first 8 hexadecimal characters of a UUID (without dashes).
func ShortID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	if len(hex) < 8 {
		return hex
	}
	return hex[:8]
}

// BuildBasePrefix returns `<envKey>/<kind>-<shortTenantId>/`, the object
// storage prefix owned by one tenant.
func BuildBasePrefix(envKey string, role Role) string {
	return BasePrefixFor(envKey, role.Kind(), role.TenantID())
}

// BasePrefixFor is BuildBasePrefix for callers holding a tenant record
// rather than a resolved role.
func BasePrefixFor(envKey string, kind Kind, tenantID uuid.UUID) string {
	envKey = strings.Trim(strings.TrimSpace(envKey), "/")
	return envKey + "/" + string(kind) + "-" + ShortID(tenantID) + "/"
}
