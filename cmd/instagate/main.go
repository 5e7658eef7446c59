package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"instagate/internal/api"
	"instagate/internal/config"
	"instagate/internal/dispatch"
	"instagate/internal/doctor"
	"instagate/internal/events"
	"instagate/internal/lock"
	"instagate/internal/log"
	"instagate/internal/meta"
	"instagate/internal/storage"
	"instagate/internal/store"
	"instagate/internal/tui/watch"
	"instagate/internal/webhook"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		os.Exit(runServe(args))
	case "watch":
		os.Exit(runWatch(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("instagate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`instagate - Instagram messaging webhook gateway

Usage:
  instagate <command> [flags]

Commands:
  serve     Start the webhook gateway in foreground
  watch     Live terminal monitor (requires the admin API)
  doctor    Validate settings and exit
  version   Show version information
  help      Show this help message

serve flags:
  --env-file  Path to a .env file (default ".env")

watch flags:
  --api-url   Admin API base URL (default "http://127.0.0.1:8081")
  --api-key   Admin API bearer token (or ADMIN_API_KEY)

doctor flags:
  --env-file  Path to a .env file (default ".env")
  --json      Emit the report as JSON
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "path to env file")
	_ = fs.Parse(args)

	settings, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		return 1
	}

	log.Setup(settings.LogLevel)
	logger := log.WithComponent("main")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbLock, err := lock.Acquire(settings.DBPath)
	if err != nil {
		logger.Error("failed to lock database", "path", settings.DBPath, "error", err)
		return 1
	}
	defer dbLock.Release()

	db, err := storage.OpenSQLite(ctx, settings.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", settings.DBPath, "error", err)
		return 1
	}
	defer db.Close()

	var templates *config.ReplyTemplates
	if settings.TemplatesPath != "" {
		templates, err = config.LoadTemplates(settings.TemplatesPath)
		if err != nil {
			logger.Error("failed to load reply templates", "path", settings.TemplatesPath, "error", err)
			return 1
		}
		logger.Info("reply templates loaded",
			"path", settings.TemplatesPath,
			"count", len(templates.Templates),
		)
	}

	eventStore := store.New(db)
	sender := meta.New(meta.Config{
		AccessToken: settings.PageAccessToken,
		BusinessID:  settings.BusinessID,
		APIVersion:  settings.GraphAPIVersion,
		Timeout:     settings.SendTimeout,
	})
	dispatcher := dispatch.New(sender, settings.ReplyText, templates, settings.SendTimeout)
	hub := events.NewHub(256)

	webhookServer := webhook.New(webhook.Config{
		Listen:      settings.Listen,
		VerifyToken: settings.VerifyToken,
		AppSecret:   settings.AppSecret,
		MaxBodySize: settings.MaxBodySize,
	}, eventStore, dispatcher, hub, log.WithComponent("webhook"))

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return webhookServer.Start(groupCtx)
	})

	if settings.AdminAPIKey != "" {
		adminServer := api.New(api.Config{
			Listen: settings.AdminListen,
			APIKey: settings.AdminAPIKey,
		}, eventStore, hub, log.WithComponent("api"))
		group.Go(func() error {
			return adminServer.Start(groupCtx)
		})
	} else {
		logger.Info("admin api disabled: no ADMIN_API_KEY configured")
	}

	logger.Info("instagate started", "version", version)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server failed", "error", err)
		return 1
	}
	logger.Info("instagate stopped")
	return 0
}

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	envFile := fs.String("env-file", ".env", "path to env file")
	asJSON := fs.Bool("json", false, "emit the report as JSON")
	_ = fs.Parse(args)

	settings, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings: %v\n", err)
		return 1
	}

	result := doctor.New(settings).Validate()

	if *asJSON {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:8081", "admin API base URL")
	apiKey := fs.String("api-key", os.Getenv("ADMIN_API_KEY"), "admin API bearer token")
	_ = fs.Parse(args)

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "watch requires --api-key or ADMIN_API_KEY")
		return 1
	}

	p := tea.NewProgram(watch.New(*apiURL, *apiKey))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "watch failed: %v\n", err)
		return 1
	}
	return 0
}
