package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/uniradar/uniradar/internal/config"
	"github.com/uniradar/uniradar/internal/scheduler"
	"github.com/uniradar/uniradar/internal/store"
	"github.com/uniradar/uniradar/pkg/alert"
	"github.com/uniradar/uniradar/pkg/platform"
	"github.com/uniradar/uniradar/pkg/radar"
	"github.com/uniradar/uniradar/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// setup opens the store, builds the platform client, and returns them
// with the loaded config. Caller closes the store.
func setup() (*config.Config, *store.SQLiteStore, *platform.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}

	client := platform.NewClient(platform.Config{
		GamesAPI:    cfg.Platform.GamesAPI,
		Timeout:     cfg.Platform.ParseTimeout(),
		MaxAttempts: cfg.Platform.MaxAttempts,
		RetryWait:   cfg.Platform.ParseRetryWait(),
	})

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	return cfg, db, client, nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runSnapshot() error {
	_, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := radar.NewSnapshotter(db, client, nil).Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("snapshot complete: %d ok, %d failed\n", res.Success, res.Failed)
	return nil
}

func runLiveCache() error {
	_, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := radar.NewLiveCacheJob(db, client, nil).Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("live cache refreshed: %d ok, %d failed\n", res.Success, res.Failed)
	return nil
}

func runMetadata() error {
	_, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := radar.NewMetadataSync(db, client, nil).Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("metadata refreshed: %d ok, %d failed\n", res.Success, res.Failed)
	return nil
}

func runDiscover(max int) error {
	cfg, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if max <= 0 {
		max = cfg.Radar.DiscoveryMax
	}

	res, err := radar.NewDiscovery(db, client, max, nil).Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("discovered %d universes, %d newly tracked, %d total tracked\n",
		res.Input, res.NewlyTracked, res.TotalTracked)
	return nil
}

func runTrack(arg string, placeID int64) error {
	_, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	var universeID int64
	switch {
	case placeID != 0:
		universeID, err = client.ResolveUniverseFromPlace(ctx, placeID)
		if err != nil {
			return fmt.Errorf("resolve place %d: %w", placeID, err)
		}
	case arg != "":
		universeID, err = strconv.ParseInt(arg, 10, 64)
		if err != nil || universeID <= 0 {
			return fmt.Errorf("invalid universe id %q", arg)
		}
	default:
		return fmt.Errorf("provide a universe id or --place")
	}

	if err := db.Track(ctx, universeID, nil); err != nil {
		return err
	}

	fmt.Printf("tracking universe %d\n", universeID)
	return nil
}

func runUntrack(arg string) error {
	_, db, _, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid universe id %q", arg)
	}

	if err := db.Untrack(context.Background(), id); err != nil {
		return err
	}

	fmt.Printf("stopped tracking universe %d\n", id)
	return nil
}

func runBreakouts(jsonOutput bool, limit int, minVotes int64) error {
	_, db, _, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.Breakouts(context.Background(), limit, minVotes)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("no trend scores yet (run a snapshot first: uniradar snapshot)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DZ\tSUSTAIN\tWILSON\tUNIVERSE\tNAME")
	for _, b := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			fmtFloat(b.DZ, 1), fmtFloat(b.Sustain, 1), fmtFloat(b.Wilson, 3),
			b.UniverseID, fmtName(b.Name))
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	snapshotter := radar.NewSnapshotter(db, client, nil)
	srv := server.New(db, snapshotter, client, port, nil)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, db, client, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	if port == 0 {
		port = cfg.Server.Port
	}

	snapshotter := radar.NewSnapshotter(db, client, nil)
	sched := scheduler.New(
		db,
		snapshotter,
		radar.NewLiveCacheJob(db, client, nil),
		radar.NewMetadataSync(db, client, nil),
		radar.NewDiscovery(db, client, cfg.Radar.DiscoveryMax, nil),
		buildAlertManager(cfg),
		cfg.Schedule,
		cfg.Radar.AlertMinDZ,
		cfg.Radar.AlertMinVotes,
		nil,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler stopped", "error", err)
		}
	}()

	srv := server.New(db, snapshotter, client, port, nil)
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	return srv.ListenAndServe()
}

func fmtFloat(v *float64, prec int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', prec, 64)
}

func fmtName(name *string) string {
	if name == nil {
		return "(unnamed)"
	}
	return *name
}
