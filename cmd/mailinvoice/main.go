package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"mailinvoice/internal"
	"mailinvoice/internal/bookings"
	"mailinvoice/internal/config"
	"mailinvoice/internal/connectors"
	"mailinvoice/internal/invoicing"
	"mailinvoice/internal/listener"
	"mailinvoice/internal/logging"
	"mailinvoice/internal/pipeline"
	"mailinvoice/internal/render"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	log := logging.New(cfg)

	// Commands that need no database.
	cmd := os.Args[1]
	switch cmd {
	case "classify":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input, inType, subject := inputFlags(fs)
		_ = fs.Parse(os.Args[2:])
		args := loadInput(*input, *inType, *subject)
		res := pipeline.NewClassifier(cfg).Classify(args.Subject, args.Message, args.Headers)
		fmt.Printf("verdict=%s stage=%s score=%d structure=%d matched=%q\n", res.Verdict, res.Stage, res.Score, res.StructureScore, res.Matched)
		return
	case "pdf:inspect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "pdf path")
		text := fs.Bool("text", false, "print extracted text")
		_ = fs.Parse(os.Args[2:])
		required(*file != "", "--file is required")
		info, err := render.Inspect(*file)
		must(err)
		fmt.Printf("pdf ok path=%s size=%d pages=%d\n", info.Path, info.Size, info.Pages)
		if *text {
			fmt.Println(info.Text)
		}
		return
	}

	app, err := invoicing.Open(ctx, cfg, log)
	must(err)
	defer app.Close()

	switch cmd {
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input, inType, subject := inputFlags(fs)
		_ = fs.Parse(os.Args[2:])
		args := loadInput(*input, *inType, *subject)
		data, strategy := app.Service.BuildInvoice(ctx, args.Subject, args.Message)
		stats := pipeline.NewFieldExtractor().Stats(pipeline.NormalizeBody(args.Message))
		printJSON(map[string]any{
			"invoice":   data,
			"strategy":  strategy,
			"signature": app.Service.Signature(args.Subject, args.Message),
			"extraction": map[string]any{
				"fields":      stats.TotalFields,
				"extracted":   stats.ExtractedFields,
				"successRate": stats.SuccessRate,
				"confidence":  stats.AverageConfidence,
			},
		})
	case "hook:outgoing":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input, inType, subject := inputFlags(fs)
		to := fs.String("to", "", "comma separated recipients")
		_ = fs.Parse(os.Args[2:])
		args := loadInput(*input, *inType, *subject)
		if *to != "" {
			args.To = splitList(*to)
		}
		if app.Service.ShouldSuppress(args) {
			fmt.Println("mail suppressed")
			return
		}
		out := app.Service.HandleOutgoingMail(ctx, args)
		fmt.Printf("subject=%q attachments=%d\n", out.Subject, len(out.Attachments))
		for _, a := range out.Attachments {
			fmt.Printf("  %s\n", a)
		}
	case "hook:booking":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input, inType, subject := inputFlags(fs)
		id := fs.Int64("id", 0, "booking id")
		_ = fs.Parse(os.Args[2:])
		required(*id > 0, "--id is required")
		args := loadInput(*input, *inType, *subject)
		res, err := app.Service.HandleBookingConfirmed(ctx, *id, internal.EmailData{Subject: args.Subject, Message: args.Message})
		must(err)
		if res.Path == "" {
			fmt.Printf("booking %d bound; no invoice rendered\n", *id)
			return
		}
		fmt.Printf("booking %d invoice=%s path=%s\n", *id, res.Data.InvoiceNumber, res.Path)
	case "pdf:cleanup":
		removed, err := app.Service.CleanupPDFs()
		must(err)
		purged, err := app.DB.PurgeExpiredCache(ctx, time.Now())
		must(err)
		fmt.Printf("cleanup done pdfs=%d cache_entries=%d\n", removed, purged)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		label := fs.String("label", cfg.MailListenerLabel, "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		subjectFilter := fs.String("subject", cfg.MailListenerSubject, "subject filter")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(ctx, cfg, strings.ToLower(strings.TrimSpace(*provider)))
		must(err)
		fetch := connectors.NewFetchService(app.DB, cfg.RawMailDir, conn, log)
		result, err := fetch.FetchAndStore(ctx, internal.MailQuery{Label: *label, Max: *max, Subject: *subjectFilter})
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d new=%d\n", *provider, result.Fetched, result.New)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "", "gmail|imap (empty for all)")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := app.Processor()
		if strings.TrimSpace(*messageID) != "" {
			required(*provider != "", "--provider is required with --messageId")
			res, err := processor.ProcessByProviderMessageID(ctx, *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d verdict=%s pdf=%s cached=%t\n", res.EmailID, res.Verdict, res.PDFPath, res.Cached)
			return
		}
		processed, invoiced, err := processor.ProcessPending(ctx, *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d invoiced=%d\n", processed, invoiced)
	case "mail:listen":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", cfg.MailListenerProvider, "gmail|imap")
		once := fs.Bool("once", false, "run a single cycle")
		_ = fs.Parse(os.Args[2:])
		conn, err := connectors.New(ctx, cfg, strings.ToLower(strings.TrimSpace(*provider)))
		must(err)
		svc := listener.NewService(app, conn)
		if *once {
			res, err := svc.RunCycle(ctx)
			must(err)
			fmt.Printf("cycle done fetched=%d processed=%d invoiced=%d exported=%d\n", res.Fetched, res.Processed, res.Invoiced, res.Exported)
			return
		}
		must(svc.Run(ctx))
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id (0 for the whole ledger)")
		limit := fs.Int("limit", 0, "max rows (0 for all)")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		required(strings.TrimSpace(*out) != "", "--out is required")
		var filter *int
		if *emailID > 0 {
			filter = emailID
		}
		rows, err := app.DB.ListInvoices(ctx, filter, *limit)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no invoices to export"))
		}
		must(invoicing.ExportLedgerToXLSX(rows, *out))
		fmt.Printf("exported %d invoices to %s\n", len(rows), *out)
	case "catalog:sync":
		if app.Sync == nil {
			must(fmt.Errorf("no booking source configured"))
		}
		n, err := app.Sync.Sync(ctx)
		must(err)
		fmt.Printf("catalog sync complete: %d services\n", n)
	case "catalog:list":
		mappings := app.Catalog.Mappings()
		names := make([]string, 0, len(mappings))
		for name := range mappings {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			m := mappings[name]
			fmt.Printf("%-40s code=%s icd=%s price=%s\n", name, m.Code, m.DiagnosticCode, m.Price.StringFixed(2))
		}
	case "bookings:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "booking export json")
		_ = fs.Parse(os.Args[2:])
		required(*file != "", "--file is required")
		stats, err := bookings.ImportFile(ctx, app.DB, *file)
		must(err)
		fmt.Printf("imported appointments=%d customers=%d staff=%d bookings=%d\n", stats.Appointments, stats.Customers, stats.Staff, stats.Bookings)
	default:
		usage()
		os.Exit(1)
	}
}

func inputFlags(fs *flag.FlagSet) (*string, *string, *string) {
	input := fs.String("input", "", "mail file (.eml, .html or .txt)")
	inType := fs.String("type", "auto", "auto|eml|html|text")
	subject := fs.String("subject", "", "subject (overrides the file's)")
	return input, inType, subject
}

func loadInput(path, inType, subject string) internal.EmailArgs {
	required(path != "", "--input is required")
	args, err := pipeline.LoadInput(inType, filepath.Clean(path), subject)
	must(err)
	return args
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: mailinvoice <command>")
	fmt.Println("commands:")
	fmt.Println("  classify --input=mail.eml [--type=auto] [--subject=...]")
	fmt.Println("  parse --input=mail.eml [--type=auto] [--subject=...]")
	fmt.Println("  hook:outgoing --input=mail.eml [--to=a@x,b@y]")
	fmt.Println("  hook:booking --id=1001 --input=mail.eml")
	fmt.Println("  pdf:inspect --file=invoice.pdf [--text]")
	fmt.Println("  pdf:cleanup")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50 [--subject=scheduled]")
	fmt.Println("  mail:process [--provider=gmail|imap] [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen [--provider=gmail|imap] [--once]")
	fmt.Println("  export:xlsx --out=./out/ledger.xlsx [--emailId=1] [--limit=0]")
	fmt.Println("  catalog:sync")
	fmt.Println("  catalog:list")
	fmt.Println("  bookings:import --file=bookings.json")
}

func required(ok bool, msg string) {
	if !ok {
		must(fmt.Errorf("%s", msg))
	}
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
