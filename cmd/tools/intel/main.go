package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/sales-intel-go/internal/app"
	"github.com/kapu/sales-intel-go/internal/client"
	"github.com/kapu/sales-intel-go/internal/config"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/service/ai"
	"github.com/kapu/sales-intel-go/internal/util"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usage = `usage:
  intel autofill [-server URL [-refresh]] <url> [url...]
  intel report   [-server URL] [-stream] [-o report.json] <profiles.json>
  intel list     -server URL [-limit N]
  intel get      -server URL <report-id>

profiles.json holds {"seller": {...}, "buyer": {...}}.
Without -server the model is called directly using the environment config.`

type profiles struct {
	Seller domain.SellerInfo `json:"seller"`
	Buyer  domain.BuyerInfo  `json:"buyer"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "autofill":
		err = runAutofill(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "get":
		err = runGet(os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "intel %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func runAutofill(args []string) error {
	fs := flag.NewFlagSet("autofill", flag.ExitOnError)
	serverURL := fs.String("server", "", "sales-intel API base URL")
	refresh := fs.Bool("refresh", false, "skip the server's autofill cache")
	timeout := fs.Duration("timeout", 2*time.Minute, "request timeout")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("at least one url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *serverURL != "" {
		resp, err := client.NewClient(*serverURL, *timeout, envLogger()).Autofill(ctx, client.AutofillRequest{
			URLs:    fs.Args(),
			Refresh: *refresh,
		})
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, resp)
	}

	intel, logger, err := buildLocal(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync()

	result, metadata, err := intel.FetchAutofillData(ctx, fs.Args())
	if err != nil {
		return err
	}

	return printJSON(os.Stdout, struct {
		Result   *domain.AutofillResult `json:"result"`
		Metadata *ai.GenerateMetadata   `json:"metadata"`
	}{result, metadata})
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	serverURL := fs.String("server", "", "sales-intel API base URL")
	stream := fs.Bool("stream", false, "use the websocket report stream (requires -server)")
	output := fs.String("o", "", "also write the report record as JSON to this file")
	timeout := fs.Duration("timeout", 5*time.Minute, "request timeout")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("exactly one profiles file is required")
	}

	input, err := loadProfiles(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var rec domain.Report
	switch {
	case *serverURL != "" && *stream:
		rec, err = reportViaStream(ctx, *serverURL, input)
	case *serverURL != "":
		var resp *client.ReportResponse
		resp, err = client.NewClient(*serverURL, *timeout, envLogger()).CreateReport(ctx, input.Seller, input.Buyer)
		if resp != nil {
			rec = resp.Report
		}
	default:
		rec, err = reportLocally(ctx, input)
	}
	if err != nil {
		return err
	}

	if *output != "" {
		if err := writeJSONFile(*output, rec); err != nil {
			return err
		}
	}

	_, err = io.WriteString(os.Stdout, rec.Markdown)
	return err
}

func reportLocally(ctx context.Context, input *profiles) (domain.Report, error) {
	intel, logger, err := buildLocal(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	defer logger.Sync()

	markdown, metadata, err := intel.GenerateDeepReport(ctx, input.Seller, input.Buyer)
	if err != nil {
		return domain.Report{}, err
	}

	rec := domain.Report{
		ID:        uuid.NewString(),
		Seller:    input.Seller,
		Buyer:     input.Buyer,
		Markdown:  markdown,
		CreatedAt: time.Now().UTC(),
	}
	if metadata != nil {
		rec.Provider = metadata.Provider
		rec.Model = metadata.Model
	}
	return rec, nil
}

func reportViaStream(ctx context.Context, serverURL string, input *profiles) (domain.Report, error) {
	logger := envLogger()
	stream := client.NewReportStream(client.NewClient(serverURL, 0, logger).StreamURL(), logger)
	if err := stream.Connect(ctx); err != nil {
		return domain.Report{}, err
	}
	defer stream.Close()

	stream.OnEvent(func(event *client.StreamEvent) {
		if event.Type == client.EventStarted {
			fmt.Fprintln(os.Stderr, "report generation started...")
		}
	})

	event, err := stream.Generate(ctx, uuid.NewString(), input.Seller, input.Buyer)
	if err != nil {
		return domain.Report{}, err
	}
	if event.Report == nil {
		return domain.Report{}, fmt.Errorf("completed event carried no report")
	}
	return *event.Report, nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL := fs.String("server", "", "sales-intel API base URL")
	limit := fs.Int("limit", 0, "maximum number of reports")
	_ = fs.Parse(args)

	if *serverURL == "" {
		return fmt.Errorf("-server is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	reports, err := client.NewClient(*serverURL, 30*time.Second, envLogger()).ListReports(ctx, *limit)
	if err != nil {
		return err
	}

	for _, r := range reports {
		fmt.Printf("%s  %s  %s -> %s\n", r.ID, r.CreatedAt.Format(time.RFC3339), r.Seller.Company, r.Buyer.Company)
	}
	return nil
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	serverURL := fs.String("server", "", "sales-intel API base URL")
	_ = fs.Parse(args)

	if *serverURL == "" || fs.NArg() != 1 {
		return fmt.Errorf("-server and a report id are required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.NewClient(*serverURL, 30*time.Second, envLogger()).GetReport(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	_, err = io.WriteString(os.Stdout, resp.Report.Markdown)
	return err
}

func buildLocal(ctx context.Context) (*ai.IntelService, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := newCLILogger(cfg.Logging.Level, cfg.Logging.File)

	_, intel, err := app.BuildIntel(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return intel, logger, nil
}

// newCLILogger keeps stdout free for command output: logs go to logFile when
// set, otherwise to stderr.
func newCLILogger(level, logFile string) *zap.Logger {
	if logFile != "" {
		if logger, err := util.NewLogger(level, logFile); err == nil {
			return logger
		}
	}

	zapLevel := zap.WarnLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(level); err == nil {
			zapLevel = parsed
		}
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func envLogger() *zap.Logger {
	return newCLILogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))
}

func loadProfiles(path string) (*profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var p profiles
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return &p, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return printJSON(f, v)
}
