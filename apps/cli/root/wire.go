package root

import (
	"github.com/infofluencer/infofluencer/apps/cli/cmd/auth"
	"github.com/infofluencer/infofluencer/apps/cli/cmd/bootstrap"
	"github.com/infofluencer/infofluencer/apps/cli/cmd/migrate"
	"github.com/infofluencer/infofluencer/apps/cli/cmd/reports"
	tenantcmd "github.com/infofluencer/infofluencer/apps/cli/cmd/tenant"
)

func init() {
	Root().PersistentFlags().String("database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")

	Root().AddCommand(migrate.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(auth.Command())
	Root().AddCommand(reports.Command())
	Root().AddCommand(tenantcmd.Command())
}
