package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"PortfolioTracker/internal/api"
	"PortfolioTracker/internal/ledger"
	"PortfolioTracker/internal/notifier"
	"PortfolioTracker/internal/report"
	"PortfolioTracker/internal/scheduler"
	"PortfolioTracker/internal/updater"

	"github.com/google/subcommands"
)

// fail prints err with the offending tickers and returns ExitFailure.
func fail(op string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", op, err)
	if tickers := ledger.Tickers(err); len(tickers) > 0 {
		fmt.Fprintf(os.Stderr, "Tickers: %s\n", strings.Join(tickers, ", "))
	}
	return subcommands.ExitFailure
}

// --- analyzeCmd ---

type analyzeCmd struct {
	quiet bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "values the portfolio and writes the period reports" }
func (*analyzeCmd) Usage() string {
	return `analyze [-quiet]

Values every position, writes the open and closed position CSVs and the
history row under output_dir/YYYY-MM, records the run and prints a summary.
`
}
func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.quiet, "quiet", false, "do not print the summary")
}

func (c *analyzeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		return fail("init", err)
	}
	defer a.Close()

	res, err := a.svc.Analyze(ctx)
	if err != nil {
		return fail("analyze", err)
	}
	if !c.quiet {
		if err := report.WriteSummary(os.Stdout, res.Snapshot, res.Year, res.Currency); err != nil {
			return fail("print summary", err)
		}
	}
	for _, f := range res.Files {
		fmt.Printf("Wrote %s\n", f)
	}
	return subcommands.ExitSuccess
}

// --- updateCmd ---

type updateCmd struct {
	dryRun    bool
	noTargets bool
}

func (*updateCmd) Name() string { return "update" }
func (*updateCmd) Synopsis() string {
	return "refreshes prices, rates and analyst targets in the data file"
}
func (*updateCmd) Usage() string {
	return `update [-dry-run] [-no-targets]

Fetches current prices, conversion rates and analyst targets and writes
them back into the position file. Closed positions are never touched.
`
}
func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "dry-run", false, "show the changes without writing the file")
	f.BoolVar(&c.noTargets, "no-targets", false, "skip analyst target refresh")
}

func (c *updateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		return fail("init", err)
	}
	defer a.Close()

	res, err := a.svc.UpdatePrices(ctx, updater.Options{DryRun: c.dryRun, NoTargets: c.noTargets || a.cfg.PriceSource.NoTargets})
	if err != nil {
		return fail("update", err)
	}
	lines := res.Lines()
	if len(lines) == 0 {
		fmt.Println("No significant changes.")
	}
	for _, l := range lines {
		fmt.Println(l)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
	if !res.Written {
		fmt.Println("Dry run: nothing written.")
	}
	return subcommands.ExitSuccess
}

// --- validateCmd ---

type validateCmd struct{}

func (*validateCmd) Name() string     { return "validate" }
func (*validateCmd) Synopsis() string { return "checks the position file for malformed records" }
func (*validateCmd) Usage() string {
	return `validate

Decodes every record of the position file and reports all malformed ones.
`
}
func (*validateCmd) SetFlags(*flag.FlagSet) {}

func (*validateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		return fail("init", err)
	}
	defer a.Close()

	positions, err := a.svc.Validate(ctx)
	if err != nil {
		return fail("validate", err)
	}
	open, closed := ledger.Classify(positions)
	fmt.Printf("%s: %d open, %d closed position(s), all valid\n", a.cfg.Portfolio.File, len(open), len(closed))
	return subcommands.ExitSuccess
}

// --- historyCmd ---

type historyCmd struct {
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "lists recorded valuation runs" }
func (*historyCmd) Usage() string {
	return `history [-n 30]

Prints the latest runs stored in the history database, newest first.
`
}
func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 30, "number of runs to show")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		return fail("init", err)
	}
	defer a.Close()

	records, err := a.svc.History(ctx, c.limit)
	if err != nil {
		return fail("history", err)
	}
	for _, r := range records {
		fmt.Printf("%s  %s  %-8s total %s  (%d open, %d closed)\n",
			r.RecordedAt.Local().Format("2006-01-02 15:04"), r.RunID, r.Period, r.Total, r.OpenPositions, r.ClosedPositions)
	}
	return subcommands.ExitSuccess
}

// --- watchCmd ---

type watchCmd struct{}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "runs the scheduler, chat commands and the HTTP API" }
func (*watchCmd) Usage() string {
	return `watch

Runs scheduled price updates and reports, answers Telegram commands and
serves the JSON API until interrupted.
`
}
func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := newApp(ctx)
	if err != nil {
		return fail("init", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.NewScheduler(ctx, a.svc, a.notifier)
	sched.NoTargets = a.cfg.PriceSource.NoTargets
	if err := sched.RegisterAll(a.cfg.Schedule.UpdateCron, a.cfg.Schedule.ReportCron); err != nil {
		return fail("register cron tasks", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn, ok := a.notifier.(*notifier.TelegramNotifier); ok {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.SetupRoutes(api.NewHandler(a.svc)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[INFO] HTTP API listening on %s", a.cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] HTTP server: %v", err)
			cancel()
		}
	}()

	if a.cfg.Schedule.RunOnStart {
		log.Println("[INFO] run_on_start enabled, updating and reporting now")
		go sched.RunNow()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Println("[INFO] shutdown signal received, stopping...")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] HTTP shutdown: %v", err)
	}
	log.Println("[INFO] tracker stopped")
	return subcommands.ExitSuccess
}
