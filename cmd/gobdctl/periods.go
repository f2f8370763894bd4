package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/periodlock"
)

func newLockCmd(flags *globalFlags) *cobra.Command {
	var in periodlock.LockInput
	var periodType string

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock an accounting period",
		Long:  "Locks a month (YYYY-MM), quarter (YYYY-QN) or year (YYYY). Bookings dated inside a locked period are rejected.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.PeriodType = periodlock.PeriodType(periodType)
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				lock, err := svc.LockPeriod(cmd.Context(), in, flags.auditContext())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Locked %s %s (id %d)\n", lock.PeriodType, lock.PeriodKey, lock.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&in.PeriodKey, "period", "p", "", "Period key, e.g. 2025-01, 2025-Q1 or 2025")
	cmd.Flags().StringVarP(&periodType, "type", "t", "", "Period type (month, quarter, year); inferred from the key when empty")
	cmd.Flags().StringVarP(&in.Reason, "reason", "r", "", "Reason recorded with the lock")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newUnlockCmd(flags *globalFlags) *cobra.Command {
	var periodKey, reason string

	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock an accounting period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				lock, err := svc.UnlockPeriod(cmd.Context(), periodKey, reason, flags.auditContext())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unlocked %s (id %d)\n", lock.PeriodKey, lock.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&periodKey, "period", "p", "", "Period key to unlock")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Reason for reopening the period")
	_ = cmd.MarkFlagRequired("period")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show whether a date falls into a locked period",
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
			}
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				lock, err := svc.CheckPeriodLock(cmd.Context(), day)
				if err != nil {
					return err
				}
				if lock == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is open\n", date)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is locked by %s %s: %s\n", date, lock.PeriodType, lock.PeriodKey, lock.Reason)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "Date to check (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func newLocksCmd() *cobra.Command {
	var filter periodlock.ListFilter
	var periodType string

	cmd := &cobra.Command{
		Use:   "locks",
		Short: "List period locks as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.PeriodType = periodlock.PeriodType(periodType)
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				locks, err := svc.GetPeriodLocks(cmd.Context(), filter)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), locks)
			})
		},
	}

	cmd.Flags().BoolVar(&filter.ActiveOnly, "active", false, "Only list active locks")
	cmd.Flags().StringVarP(&periodType, "type", "t", "", "Filter by period type")
	return cmd
}
