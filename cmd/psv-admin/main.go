package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/terra-clan/psv-academy/internal/api"
	"github.com/terra-clan/psv-academy/internal/config"
	"github.com/terra-clan/psv-academy/internal/content"
	"github.com/terra-clan/psv-academy/internal/storage"
)

const usage = `usage: psv-admin <command> [flags]

commands:
  create-client    register an API client and print its key
  validate-content load the content directory and report what it contains
`

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "create-client":
		err = createClient(os.Args[2:])
	case "validate-content":
		err = validateContent(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func createClient(args []string) error {
	fs := flag.NewFlagSet("create-client", flag.ExitOnError)
	name := fs.String("name", "", "client name")
	perms := fs.String("permissions", "catalog:read,grading:write", "comma-separated permissions, * for all")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return fmt.Errorf("-name is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := storage.Open(ctx, storage.Options{
		Driver:        cfg.Database.Driver,
		DSN:           cfg.Database.DSN,
		MigrationsDir: cfg.Database.MigrationsDir,
		MaxConns:      cfg.Database.MaxConns,
		MinConns:      cfg.Database.MinConns,
	})
	if err != nil {
		return err
	}
	defer repo.Close()

	var permissions []string
	for _, p := range strings.Split(*perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			permissions = append(permissions, p)
		}
	}

	client, key, err := api.NewApiClient(*name, permissions)
	if err != nil {
		return err
	}
	if err := repo.CreateClient(ctx, client); err != nil {
		return err
	}

	fmt.Printf("client %q created (id %d)\n", client.Name, client.ID)
	fmt.Printf("api key (shown once): %s\n", key)
	return nil
}

func validateContent(args []string) error {
	fs := flag.NewFlagSet("validate-content", flag.ExitOnError)
	dir := fs.String("dir", "./content", "content directory")
	fs.Parse(args)

	loader := content.NewLoader()
	if err := loader.LoadFromDir(*dir); err != nil {
		return err
	}

	tracks := loader.ListTracks()
	total := 0
	for _, t := range tracks {
		scenarios := loader.ListScenarios(t.ID)
		total += len(scenarios)
		fmt.Printf("%-20s %2d scenarios  %s\n", t.ID, len(scenarios), t.Name)
	}
	fmt.Printf("%d tracks, %d scenarios\n", len(tracks), total)
	if total == 0 {
		return fmt.Errorf("no scenarios loaded from %s", *dir)
	}
	return nil
}
