package kiosk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"qrcheckin/internal/bootstrap"
	"qrcheckin/internal/config"
	"qrcheckin/internal/domain"
	"qrcheckin/internal/journal"
)

const shutdownTimeout = 5 * time.Second

// Main returns an exit code for use by cmd/qrcheckin-kiosk.
func Main() int { return MainWithArgs(os.Args[1:], os.Stdout, os.Stderr) }

// MainWithArgs runs the command tree against args and returns an exit code.
func MainWithArgs(args []string, stdout io.Writer, stderr io.Writer) int {
	root := NewRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

// NewRootCmd builds the kiosk command tree. Flags override the matching
// QRCHECKIN_* variables.
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "qrcheckin-kiosk",
		Short:         "Headless QR check-in desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (.toml, .yaml or .json); defaults QRCHECKIN_CONFIG")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error; defaults QRCHECKIN_LOG_LEVEL or info")
	root.PersistentFlags().String("event", "", "Event id to check in to; defaults QRCHECKIN_EVENT_ID")
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		for flag, env := range map[string]string{
			"config":    "QRCHECKIN_CONFIG",
			"log-level": "QRCHECKIN_LOG_LEVEL",
			"event":     "QRCHECKIN_EVENT_ID",
		} {
			f := cmd.Flags().Lookup(flag)
			if f == nil || !f.Changed {
				continue
			}
			if err := os.Setenv(env, f.Value.String()); err != nil {
				return err
			}
		}
		return nil
	}

	runCmd := &cobra.Command{
		Use:     "run",
		Short:   "Scan continuously and check in every code",
		Example: "  qrcheckin-kiosk run --event ev1",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScanner(ctx, out)
		},
	}

	checkInCmd := &cobra.Command{
		Use:     "checkin <code>",
		Short:   "Check in one code without the camera",
		Example: "  qrcheckin-kiosk checkin EV001-ALICE-001 --event ev1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkInCode(cmd.Context(), out, args[0])
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return printHistory(cmd.Context(), out, limit)
		},
	}
	historyCmd.Flags().Int("limit", journal.DefaultListLimit, "Maximum number of scans to list")

	root.AddCommand(runCmd, checkInCmd, historyCmd)
	return root
}

func runScanner(ctx context.Context, out io.Writer) error {
	printer := newEventPrinter(out)
	services, err := bootstrap.Build(ctx, printer, printer)
	if err != nil {
		return err
	}
	defer closeServices(services)

	if services.Router.EventID() == "" {
		return errors.New("no event selected; pass --event or set QRCHECKIN_EVENT_ID")
	}

	feedErr := make(chan error, 1)
	if services.Feed != nil {
		go func() { feedErr <- services.Feed.ListenAndServe() }()
	}

	status := services.Scanner.Activate(ctx)
	if status.ErrorMessage != "" {
		return errors.New(status.ErrorMessage)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case message := <-printer.failed:
			return errors.New(message)
		case err := <-feedErr:
			if err != nil {
				return fmt.Errorf("feed server: %w", err)
			}
			feedErr = nil
		}
	}
}

func checkInCode(ctx context.Context, out io.Writer, code string) error {
	printer := newEventPrinter(out)
	services, err := bootstrap.Build(ctx, nil, printer)
	if err != nil {
		return err
	}
	defer closeServices(services)

	_, err = services.Dispatcher.CheckIn(ctx, services.Router.EventID(), code)
	return err
}

func printHistory(ctx context.Context, out io.Writer, limit int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return errors.New("scan journal is disabled")
	}

	store, err := journal.Open(ctx, cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	eventID := cfg.Scanner.EventID
	var records []domain.ScanRecord
	if eventID != "" {
		records, err = store.ListByEvent(ctx, eventID, limit)
	} else {
		records, err = store.Recent(ctx, limit)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCANNED AT\tEVENT\tCODE\tOUTCOME\tDETAIL")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ScannedAt.Local().Format(time.DateTime), r.EventID, r.Code, r.Outcome, r.Detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if eventID != "" {
		summary, err := store.Summarize(ctx, eventID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "total %d, checked in %d, rejected %d\n", summary.Total, summary.CheckedIn, summary.Rejected)
	}
	return nil
}

func closeServices(services bootstrap.Services) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := services.Close(ctx); err != nil {
		services.Logger.Error().Err(err).Msg("shutdown")
	}
}

// eventPrinter writes scanner and check-in events as lines of text. failed
// receives the message of the first scanner error that leaves it idle.
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	failed chan string
}

func newEventPrinter(out io.Writer) *eventPrinter {
	return &eventPrinter{out: out, failed: make(chan string, 1)}
}

func (p *eventPrinter) ScannerStateChanged(status domain.ScannerStatus) {
	line := "scanner " + string(status.State)
	if status.ErrorMessage != "" {
		line += ": " + status.ErrorMessage
	}
	p.println(line)

	if status.State == domain.ScannerStateIdle && status.ErrorMessage != "" {
		select {
		case p.failed <- status.ErrorMessage:
		default:
		}
	}
}

func (p *eventPrinter) Scanned(payload string) {
	p.println("scanned " + strings.TrimSpace(payload))
}

func (p *eventPrinter) CheckInSucceeded(result domain.CheckInResult) {
	p.println("ok " + result.Message)
}

func (p *eventPrinter) CheckInFailed(code domain.ErrorCode, message string) {
	p.println("error [" + string(code) + "] " + message)
}

func (p *eventPrinter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}
