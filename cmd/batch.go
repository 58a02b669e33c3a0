package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enrich/internal/enrich"
	"github.com/sells-group/lead-enrich/internal/input"
	"github.com/sells-group/lead-enrich/internal/model"
	"github.com/sells-group/lead-enrich/internal/monitoring"
	"github.com/sells-group/lead-enrich/internal/resilience"
	"github.com/sells-group/lead-enrich/pkg/notion"
)

var (
	batchInput         string
	batchNotion        bool
	batchLimit         int
	batchMaxConcurrent int
	batchExport        string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Batch enrich companies from a file or the Notion lead queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if (batchInput == "") == !batchNotion {
			return eris.New("batch: exactly one of --input or --notion is required")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mode := "enrich"
		if batchNotion {
			mode = "notion"
		}
		env, err := initEnrich(ctx, mode)
		if err != nil {
			return err
		}
		defer env.Close(cmd.Context())

		concurrency := batchMaxConcurrent
		if concurrency <= 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		if batchNotion {
			leads, err := notion.QueuedLeads(ctx, env.Notion, cfg.Notion.LeadDB)
			if err != nil {
				return eris.Wrap(err, "query queued leads")
			}
			if err := processLeads(ctx, leads, batchLimit, concurrency, env.Notion, func(ctx context.Context, c model.Company) *model.EnrichmentResult {
				return env.Orchestrator.EnrichCompany(ctx, c.Name, c.Domain, false)
			}); err != nil {
				return err
			}
		} else {
			companies, err := input.ReadCompanies(ctx, batchInput)
			if err != nil {
				return eris.Wrap(err, "read companies")
			}
			if batchLimit > 0 && len(companies) > batchLimit {
				companies = companies[:batchLimit]
			}
			results := env.Orchestrator.ProcessBatch(ctx, companies, concurrency)
			s := summarize(results)
			zap.L().Info("batch complete",
				zap.Int("succeeded", s.succeeded),
				zap.Int("failed", s.failed),
				zap.Int("contacts", s.contacts),
			)
		}

		if cfg.Monitoring.WebhookURL != "" {
			monitoring.NewChecker(env.Orchestrator, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring).Check(ctx)
		}

		if batchExport != "" {
			path := env.Orchestrator.ExportResults(ctx, enrich.ExportOptions{Format: batchExport, IncludeMetrics: true})
			if path == "" {
				return eris.New("batch: export produced no file")
			}
			fmt.Println(path)
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchInput, "input", "", "CSV, XLSX or JSON file of companies")
	batchCmd.Flags().BoolVar(&batchNotion, "notion", false, "read queued leads from the Notion lead database")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of companies to process (0 for all)")
	batchCmd.Flags().IntVar(&batchMaxConcurrent, "max-concurrent", 0, "concurrent companies (default from config)")
	batchCmd.Flags().StringVar(&batchExport, "export", "", "export all stored results afterwards (csv or xlsx)")
	rootCmd.AddCommand(batchCmd)
}

// leadUpdateRetry governs Notion write-backs.
var leadUpdateRetry = resilience.RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: time.Second,
	MaxBackoff:     10 * time.Second,
	Multiplier:     2,
	OnRetry:        resilience.RetryLogger("notion", "update_lead"),
}

type batchSummary struct {
	succeeded, failed, contacts int
}

func summarize(results map[string]*model.EnrichmentResult) batchSummary {
	var s batchSummary
	for _, r := range results {
		if r == nil || r.Failed() {
			s.failed++
			continue
		}
		s.succeeded++
		s.contacts += len(r.Contacts)
	}
	return s
}

// enrichFunc is the callback signature for running enrichment on a company.
type enrichFunc func(ctx context.Context, company model.Company) *model.EnrichmentResult

// processLeads applies limit, then enriches leads concurrently and writes
// each outcome back to its Notion page. A lead that fails does not stop
// the others.
func processLeads(ctx context.Context, leads []notion.Lead, limit, concurrency int, notionClient notion.Client, run enrichFunc) error {
	if len(leads) == 0 {
		zap.L().Info("no queued leads found")
		return nil
	}

	if limit > 0 && len(leads) > limit {
		leads = leads[:limit]
	}

	zap.L().Info("processing batch",
		zap.Int("leads", len(leads)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, lead := range leads {
		g.Go(func() error {
			log := zap.L().With(zap.String("company", lead.Name), zap.String("domain", lead.Domain))

			result := run(gctx, model.Company{Name: lead.Name, Domain: lead.Domain})
			outcome := leadOutcome(result, time.Now())
			if outcome.Status == notion.StatusFailed {
				failed.Add(1)
				log.Error("enrichment failed", zap.String("error", outcome.Error))
			} else {
				succeeded.Add(1)
				log.Info("enrichment complete",
					zap.String("status", outcome.Status),
					zap.Int("contacts", len(result.Contacts)),
				)
			}

			if notionClient != nil && lead.PageID != "" {
				err := resilience.Do(gctx, leadUpdateRetry, func(ctx context.Context) error {
					return notion.UpdateLead(ctx, notionClient, lead.PageID, outcome)
				})
				if err != nil {
					log.Warn("failed to update notion lead", zap.Error(err))
				}
			}
			return nil // don't abort batch on individual failure
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}

// leadOutcome maps an enrichment result onto the lead's queue status. The
// top-ranked contact is written back.
func leadOutcome(result *model.EnrichmentResult, at time.Time) notion.Outcome {
	switch {
	case result == nil:
		return notion.Outcome{Status: notion.StatusFailed, Error: "no result", At: at}
	case result.Failed():
		return notion.Outcome{Status: notion.StatusFailed, Error: result.ErrorDetails, At: at}
	case len(result.Contacts) == 0:
		return notion.Outcome{Status: notion.StatusNoContact, At: at}
	}

	top := result.Contacts[0]
	sources := make([]string, len(top.Sources))
	for i, s := range top.Sources {
		sources[i] = s.String()
	}
	return notion.Outcome{
		Status:     notion.StatusEnriched,
		Contact:    top.Name,
		Title:      top.Title,
		Email:      top.Email,
		Confidence: top.Confidence,
		Sources:    sources,
		At:         at,
	}
}
