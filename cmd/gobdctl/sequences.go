package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/gobd-ledger/internal/compliance"
	"github.com/odyssey-erp/gobd-ledger/internal/records"
)

func newNextCmd() *cobra.Command {
	var documentType string
	var year int

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Draw the next reference number",
		Long:  "Draws and consumes the next reference number for a document type and fiscal year. A number drawn here and never stored shows up as a gap.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				ref, err := svc.GetNextSequenceNumber(cmd.Context(), strings.ToUpper(documentType), year)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ref)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&documentType, "type", "t", "", "Document type, e.g. EI or EA")
	cmd.Flags().IntVarP(&year, "year", "y", time.Now().Year(), "Fiscal year")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newGapsCmd() *cobra.Command {
	var documentType string
	var year int

	cmd := &cobra.Command{
		Use:   "gaps",
		Short: "Report issued reference numbers no record holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			types := []string{strings.ToUpper(documentType)}
			if documentType == "" {
				types = types[:0]
				for _, kind := range records.Kinds {
					types = append(types, kind.DocumentType())
				}
			}
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				for _, t := range types {
					report, err := svc.SequenceGaps(cmd.Context(), t, year)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s %d: last issued %d, held %d, missing %d\n", report.DocumentType, report.Year, report.LastIssued, report.Held, len(report.Missing))
					for _, ref := range report.Missing {
						fmt.Fprintf(out, "  %s\n", ref)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&documentType, "type", "t", "", "Document type; all record kinds when empty")
	cmd.Flags().IntVarP(&year, "year", "y", time.Now().Year(), "Fiscal year")
	return cmd
}

func newBackfillCmd(flags *globalFlags) *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Assign reference numbers to records that have none",
		RunE: func(cmd *cobra.Command, args []string) error {
			if enqueue {
				return withJobsCLI(func(jc *JobsCLI) error {
					info, err := jc.EnqueueBackfill(cmd.Context(), flags.user)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s as %s\n", info.Type, info.ID)
					return nil
				})
			}
			return withService(cmd.Context(), func(svc *compliance.Service) error {
				result, err := svc.BackfillReferenceNumbers(cmd.Context(), flags.auditContext())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Numbered %d income and %d expense records\n", result.Income, result.Expenses)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Hand the run to the worker instead of running it here")
	return cmd
}
