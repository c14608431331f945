package cli

import (
	"time"

	"github.com/spf13/cobra"

	"hospital-assistant/internal/db"
	httpserver "hospital-assistant/internal/http"
)

var (
	auditFilter db.AuditFilter
	tokenTTL    time.Duration
)

func init() {
	audit := &cobra.Command{
		Use:   "audit",
		Short: "List tool invocation records, newest first",
		RunE:  runAudit,
	}
	audit.Flags().IntVarP(&auditFilter.Limit, "limit", "n", 20, "Maximum records")
	audit.Flags().StringVar(&auditFilter.SessionID, "session", "", "Only this session")
	audit.Flags().StringVar(&auditFilter.ToolName, "tool", "", "Only this tool")

	token := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint a bearer token for the /admin API",
		RunE:  runAdminToken,
	}
	token.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")

	RootCmd.AddCommand(audit, token)
}

func runAudit(cmd *cobra.Command, args []string) error {
	conn, repo, err := openRepository(cmd.Context())
	if err != nil {
		return err
	}
	defer conn.Close()

	records, err := repo.ListToolInvocations(cmd.Context(), auditFilter)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), records)
}

func runAdminToken(cmd *cobra.Command, args []string) error {
	token, err := httpserver.IssueAdminToken(settings.AdminJWTSecret, tokenTTL, time.Now())
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write([]byte(token + "\n"))
	return err
}
