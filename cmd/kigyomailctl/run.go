package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/kigyomail/internal/batchlog"
	"github.com/smallbiznis/kigyomail/internal/config"
	"github.com/smallbiznis/kigyomail/internal/corporation"
	"github.com/smallbiznis/kigyomail/internal/ledger"
	"github.com/smallbiznis/kigyomail/internal/mailqueue"
	"github.com/smallbiznis/kigyomail/internal/pipeline"
	"github.com/smallbiznis/kigyomail/internal/ratelimit"
	"github.com/smallbiznis/kigyomail/internal/registry"
	"github.com/smallbiznis/kigyomail/internal/scheduler"
	"github.com/smallbiznis/kigyomail/internal/settlement"
	"github.com/smallbiznis/kigyomail/internal/subscription"
	"github.com/smallbiznis/kigyomail/internal/usage"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func runCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run <job>",
		Short: "Run one batch job now and print its summary",
		Long: `Run one batch job immediately. Jobs:
  fetch_corporations  ingest the registry file and queue matching letters
  lock_queue          confirm tomorrow's pending letters
  settle_billing      debit balances for sent letters

Examples:
  kigyomailctl run fetch_corporations --date 20250512
  kigyomailctl run lock_queue`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{scheduler.JobFetchCorporations, scheduler.JobLockQueue, scheduler.JobSettleBilling},
		RunE: func(cmd *cobra.Command, args []string) error {
			job := strings.ToLower(strings.TrimSpace(args[0]))
			if date != "" && job != scheduler.JobFetchCorporations {
				return fmt.Errorf("--date only applies to %s", scheduler.JobFetchCorporations)
			}

			var sched *scheduler.Scheduler
			var cfg config.Config
			return withApp(cmd.Context(), func(ctx context.Context) error {
				result, err := runJob(ctx, sched, cfg, job, date)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			},
				registry.Module,
				corporation.Module,
				subscription.Module,
				mailqueue.Module,
				ledger.Module,
				usage.Module,
				settlement.Module,
				batchlog.Module,
				pipeline.Module,
				ratelimit.Module,
				scheduler.Module,
				fx.Populate(&sched, &cfg),
			)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "registry file date (YYYYMMDD), defaults to today")
	return cmd
}

func runJob(ctx context.Context, sched *scheduler.Scheduler, cfg config.Config, job, date string) (any, error) {
	if job != scheduler.JobFetchCorporations || date == "" {
		return sched.RunJob(ctx, job, scheduler.TriggerCLI)
	}
	parsed, err := time.ParseInLocation("20060102", date, cfg.Location())
	if err != nil {
		return nil, fmt.Errorf("invalid --date %q: %w", date, err)
	}
	return sched.FetchCorporations(ctx, scheduler.TriggerCLI, parsed)
}
