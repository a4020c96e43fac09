// Command catalogctl runs operational tasks against the catalog's record
// store and search index, using the same environment as the server.
//
//	catalogctl create-index
//	catalogctl reindex-all [-with-trashed] [-recreate]
//	catalogctl seed [-count 1000]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/catalog/internal/app"
	"github.com/utafrali/catalog/internal/config"
	"github.com/utafrali/catalog/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "catalogctl:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: catalogctl <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  create-index                  create the search index if it does not exist")
	fmt.Fprintln(w, "  reindex-all [-with-trashed] [-recreate]")
	fmt.Fprintln(w, "                                rebuild the search index from the record store,")
	fmt.Fprintln(w, "                                dropping it first with -recreate")
	fmt.Fprintln(w, "  seed [-count N]               insert N demo products")
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return fmt.Errorf("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New("catalogctl", cfg.LogLevel)

	switch args[0] {
	case "create-index":
		return createIndex(ctx, cfg, log, out)
	case "reindex-all":
		fs := flag.NewFlagSet("reindex-all", flag.ContinueOnError)
		withTrashed := fs.Bool("with-trashed", cfg.SearchIncludeDeleted, "index soft-deleted products too")
		recreate := fs.Bool("recreate", false, "drop the index and rebuild it with the current mapping")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		cfg.SearchIncludeDeleted = *withTrashed
		return reindexAll(ctx, cfg, log, out, *recreate)
	case "seed":
		fs := flag.NewFlagSet("seed", flag.ContinueOnError)
		count := fs.Int("count", 1000, "number of products to insert")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		return seed(ctx, cfg, log, out, *count)
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(out)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func createIndex(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer) error {
	index, err := app.OpenIndex(cfg, log)
	if err != nil {
		return err
	}
	if err := index.Adapter.EnsureIndexExists(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "search index ready")
	return nil
}

func reindexAll(ctx context.Context, cfg *config.Config, log *slog.Logger, out io.Writer, recreate bool) error {
	store, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := app.OpenIndex(cfg, log)
	if err != nil {
		return err
	}
	if recreate {
		err = index.Adapter.RecreateIndex(ctx)
	} else {
		err = index.Adapter.EnsureIndexExists(ctx)
	}
	if err != nil {
		return err
	}

	n, err := index.Adapter.RebuildAll(ctx, store.Repo)
	if err != nil {
		return fmt.Errorf("reindex after %d documents: %w", n, err)
	}
	fmt.Fprintf(out, "indexed %d products\n", n)
	return nil
}
