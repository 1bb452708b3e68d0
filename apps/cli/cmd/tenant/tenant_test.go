package tenantcmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	tenantsservice "github.com/infofluencer/infofluencer/domains/tenants/be/service"
	"github.com/infofluencer/infofluencer/platform/go/tenant"
)

func TestDeleteRequiresConfirmation(t *testing.T) {
	t.Parallel()

	cmd := deleteCommand()
	cmd.SetArgs([]string{"--tenant", uuid.NewString()})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	err := cmd.Execute()
	require.ErrorContains(t, err, "--yes")
}

func TestDeleteRejectsMalformedID(t *testing.T) {
	t.Parallel()

	cmd := deleteCommand()
	cmd.SetArgs([]string{"--tenant", "nope", "--yes"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.ErrorContains(t, cmd.Execute(), "invalid tenant id")
}

func TestListRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	cmd := listCommand()
	cmd.SetArgs([]string{"--kind", "admin"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	require.ErrorContains(t, cmd.Execute(), "invalid kind")
}

func TestPrintTenants(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("1f0c2a4b-5d6e-4f70-8a9b-0c1d2e3f4a5b")
	var buf bytes.Buffer
	err := printTenants(&buf, tenantsservice.ListResult{
		Tenants: []tenantsservice.Tenant{{
			ID:         id,
			Kind:       tenant.KindCompany,
			OwnerEmail: "owner@acme.test",
			BasePrefix: "dev/company-1f0c2a4b/",
			CreatedAt:  time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		}},
		Page:       1,
		PageSize:   20,
		TotalItems: 1,
		TotalPages: 1,
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, id.String())
	require.Contains(t, out, "owner@acme.test")
	require.Contains(t, out, "2026-03-04")
	require.Contains(t, out, "page 1/1 (1 tenants)")
}
