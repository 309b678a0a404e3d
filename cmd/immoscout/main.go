// Command immoscout queries the ImmoScout24 mobile API and prints the raw
// JSON responses.
//
//	immoscout convert <web-search-url>
//	immoscout search [-pages N] [-start K] [-parallel P] <web-or-mobile-url>
//	immoscout expose [-parallel P] <listing-id>...
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"immoscoutclient/internal/configs"
	"immoscoutclient/internal/logger"
	"immoscoutclient/pkg/immoscout"

	"golang.org/x/sync/errgroup"
)

const usage = `usage: immoscout [-env FILE] <command> [flags] args

commands:
  convert <web-search-url>        print the mobile API search URL
  search  <web-or-mobile-url>     fetch search result pages
  expose  <listing-id>...         fetch exposé details
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "immoscout:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("immoscout", flag.ContinueOnError)
	envFile := global.String("env", ".env", "optional env file with IMMOSCOUT_* settings")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	if cmd == "convert" {
		return runConvert(rest, out)
	}

	cfg, err := configs.Load(*envFile)
	if err != nil {
		return err
	}
	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	client, err := immoscout.New(cfg.Client, immoscout.WithLogger(log))
	if err != nil {
		return err
	}
	defer client.Close()

	switch cmd {
	case "search":
		return runSearch(ctx, client, log, rest, out)
	case "expose":
		return runExpose(ctx, client, log, rest, out)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runConvert(args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("convert takes exactly one web search url")
	}
	mobile, err := immoscout.ConvertWebToMobile(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, mobile)
	return err
}

type pageResult struct {
	Page   int `json:"page"`
	Result any `json:"result"`
}

func runSearch(ctx context.Context, client *immoscout.Client, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	pages := fs.Int("pages", 1, "number of pages to fetch")
	start := fs.Int("start", 1, "first page")
	parallel := fs.Int("parallel", 2, "pages fetched at once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("search takes exactly one url")
	}
	if *pages < 1 || *start < 1 || *parallel < 1 {
		return errors.New("-pages, -start and -parallel must be positive")
	}

	mobile := fs.Arg(0)
	if strings.Contains(mobile, "immobilienscout24.de/Suche/") {
		converted, err := immoscout.ConvertWebToMobile(mobile)
		if err != nil {
			return err
		}
		log.Info("converted web url", "mobile_url", converted)
		mobile = converted
	}

	results := make([]pageResult, *pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i := range results {
		page := *start + i
		g.Go(func() error {
			doc, err := client.SearchList(gctx, mobile, page)
			if err != nil {
				return err
			}
			results[i] = pageResult{Page: page, Result: doc}
			log.Info("fetched search page", "page", page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return writeJSON(out, results)
}

type exposeResult struct {
	ListingID int64 `json:"listingId"`
	Result    any   `json:"result"`
}

func runExpose(ctx context.Context, client *immoscout.Client, log *slog.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("expose", flag.ContinueOnError)
	parallel := fs.Int("parallel", 2, "exposés fetched at once")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("expose takes at least one listing id")
	}
	if *parallel < 1 {
		return errors.New("-parallel must be positive")
	}

	ids := make([]int64, fs.NArg())
	for i, arg := range fs.Args() {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return fmt.Errorf("listing id %q: %w", arg, err)
		}
		ids[i] = id
	}

	results := make([]exposeResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i, id := range ids {
		g.Go(func() error {
			doc, err := client.PropertyDetails(gctx, id)
			if err != nil {
				return err
			}
			results[i] = exposeResult{ListingID: id, Result: doc}
			log.Info("fetched expose", "listing_id", id)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return writeJSON(out, results)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
