package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rfqdesk/internal/config"
	"rfqdesk/internal/connectors"
	gmailconnector "rfqdesk/internal/connectors/gmail"
	imapconnector "rfqdesk/internal/connectors/imap"
	"rfqdesk/internal/directory"
	"rfqdesk/internal/docai"
	"rfqdesk/internal/listener"
	"rfqdesk/internal/pipeline"
	"rfqdesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "directory:sync":
		svc := directory.NewSyncService(db, cfg)
		count, err := svc.Sync(context.Background())
		must(err)
		fmt.Printf("directory sync complete: %d brands\n", count)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		deps, err := buildDeps(db, cfg)
		must(err)
		processor := pipeline.NewProcessingService(db, cfg, deps)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(*provider, *messageID)
			must(err)
			fmt.Printf("processed message id=%d requests=%d items=%d\n", res.MessageID, res.Requests, res.Items)
			return
		}
		processedMessages, processedRequests, err := processor.ProcessPending(*batch, *provider)
		must(err)
		fmt.Printf("processed pending messages=%d requests=%d\n", processedMessages, processedRequests)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		requestID := fs.String("requestId", "", "internal request id (DDP-...)")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*requestID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--requestId and --out are required"))
		}
		request, err := db.GetRequestByInternalID(*requestID)
		must(err)
		if request == nil {
			must(fmt.Errorf("no request found: %s", *requestID))
		}
		must(pipeline.ExportRequestToXLSX(*request, *out))
		fmt.Printf("exported %d items to %s\n", len(request.Items), *out)
	case "mail:listen":
		s := listener.NewService(db, cfg)
		must(s.Run(context.Background()))
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "raw .eml file path")
		outputDir := fs.String("outputDir", "", "directory for xlsx output")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}

		raw, err := os.ReadFile(*input)
		must(err)
		msg, err := pipeline.ParseRawMessage(filepath.Base(*input), raw)
		must(err)

		deps, err := buildDeps(db, cfg)
		must(err)
		runner := pipeline.NewRunner(cfg, pipeline.DefaultRules(), deps)
		out := runner.Run(msg)

		fmt.Printf("verdict=%s requestScore=%d offerScore=%d\n", out.Verdict.Verdict, out.Verdict.RequestScore, out.Verdict.OfferScore)
		for _, reason := range out.Verdict.Reasons {
			fmt.Printf("  reason: %s\n", reason)
		}
		for _, warning := range out.Warnings {
			fmt.Printf("  warning: %s\n", warning)
		}
		for _, request := range out.Requests {
			fmt.Printf("request %s items=%d method=%s\n", request.InternalID, len(request.Items), request.Method)
			if strings.TrimSpace(*outputDir) != "" {
				path := filepath.Join(*outputDir, request.InternalID+".xlsx")
				must(pipeline.ExportRequestToXLSX(request, path))
				fmt.Printf("  written %s\n", path)
			}
		}
	default:
		usage()
		os.Exit(1)
	}
}

func buildDeps(db *storage.DB, cfg config.Config) (pipeline.Deps, error) {
	idx, err := directory.LoadIndex(db)
	if err != nil {
		return pipeline.Deps{}, err
	}
	deps := pipeline.Deps{Suppliers: idx, Brands: idx}
	if strings.TrimSpace(cfg.DocAIBaseURL) != "" {
		deps.Fallback = docai.NewClient(cfg)
	}
	return deps, nil
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: rfqdesk <command>")
	fmt.Println("commands:")
	fmt.Println("  directory:sync")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  export:xlsx --requestId=DDP-20260113-810 --out=./out/request.xlsx")
	fmt.Println("  run --input=./mail.eml [--outputDir=./out]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
