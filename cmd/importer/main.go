// Command importer loads one RSS/Atom document into the content store,
// typically to seed a database before the server runs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/lysyi3m/feed-cascade/app/content"
	"github.com/lysyi3m/feed-cascade/app/database"
	"github.com/lysyi3m/feed-cascade/app/ingest"
)

type options struct {
	DBPath    string `long:"db-path" env:"DB_PATH" default:"./feed-cascade.db" description:"Path to the sqlite content database"`
	File      string `long:"file" description:"Local RSS/Atom file to import"`
	URL       string `long:"url" description:"RSS/Atom URL to import"`
	Name      string `long:"name" description:"Source name used in logs and as fallback author"`
	AuthorID  string `long:"author" description:"Author id for entries that name no author"`
	Privacy   string `long:"privacy" default:"public_highlight" description:"Privacy level assigned to imported entries"`
	Promoted  bool   `long:"promoted" description:"Mark imported entries as promoted"`
	MaxSize   int64  `long:"max-feed-size" env:"MAX_FEED_SIZE" default:"10485760" description:"Maximum size in bytes of a fetched feed"`
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Feed-Cascade/1.0" description:"User agent string for HTTP requests"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

func main() {
	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).ParseArgs(os.Args[1:]); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if opts.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("Import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if (opts.File == "") == (opts.URL == "") {
		return fmt.Errorf("exactly one of --file or --url is required")
	}

	privacy, err := content.ParsePrivacyLevel(opts.Privacy)
	if err != nil {
		return err
	}

	db, err := database.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, _, err := database.RunMigrations(db); err != nil {
		return err
	}

	source := ingest.Source{
		Name:     opts.Name,
		AuthorID: opts.AuthorID,
		Privacy:  privacy,
		Promoted: opts.Promoted,
	}

	importer := ingest.NewImporter(&http.Client{Timeout: ingest.DefaultFetchTimeout},
		ingest.NewParser(), database.NewContentRepository(db), nil, opts.UserAgent)
	importer.SetMaxBodySize(opts.MaxSize)

	var result ingest.Result
	if opts.URL != "" {
		if source.Name == "" {
			source.Name = opts.URL
		}
		result, err = importer.ImportURL(ctx, opts.URL, source)
	} else {
		var data []byte
		if data, err = os.ReadFile(opts.File); err != nil {
			return fmt.Errorf("failed to read feed file: %w", err)
		}
		if source.Name == "" {
			source.Name = opts.File
		}
		result, err = importer.Import(ctx, data, source)
	}
	if err != nil {
		return err
	}

	slog.Info("Import complete", "source", source.Name, "total", result.Total, "stored", result.Stored)
	return nil
}
