package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/gobd-ledger/internal/audit"
	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
)

func newAuditCmd() *cobra.Command {
	var (
		filters  audit.SearchFilters
		action   string
		from, to string
		asCSV    bool
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Search the audit ledger",
		Long:  "Searches audit entries. With --entity-type and --entity-id the full trail of one record is printed in order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters.Action = audit.Action(action)
			var err error
			if filters.From, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if filters.To, err = parseDateFlag("to", to); err != nil {
				return err
			}
			if !filters.To.IsZero() {
				filters.To = filters.To.Add(24*time.Hour - time.Nanosecond)
			}
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				var entries []audit.Entry
				if filters.EntityType != "" && filters.EntityID != "" && filters.Action == "" && filters.UserID == "" && from == "" && to == "" {
					entries, err = svc.GetAuditTrail(cmd.Context(), filters.EntityType, filters.EntityID)
				} else {
					var result audit.SearchResult
					result, err = svc.SearchAuditLog(cmd.Context(), filters)
					entries = result.Entries
				}
				if err != nil {
					return err
				}
				if asCSV {
					return audit.WriteCSV(cmd.OutOrStdout(), entries)
				}
				return printJSON(cmd.OutOrStdout(), entries)
			})
		},
	}

	cmd.Flags().StringVar(&filters.EntityType, "entity-type", "", "Entity type, e.g. income or period_lock")
	cmd.Flags().StringVar(&filters.EntityID, "entity-id", "", "Entity id")
	cmd.Flags().StringVar(&filters.UserID, "by", "", "Only entries written by this user")
	cmd.Flags().StringVar(&action, "action", "", "Only entries with this action")
	cmd.Flags().StringVar(&from, "from", "", "Earliest date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Latest date (YYYY-MM-DD), inclusive")
	cmd.Flags().IntVarP(&filters.Limit, "limit", "l", 0, "Maximum number of entries")
	cmd.Flags().BoolVar(&asCSV, "csv", false, "Write CSV instead of JSON")
	return cmd
}

func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q, expected YYYY-MM-DD", name, value)
	}
	return t, nil
}
