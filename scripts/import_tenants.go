package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"leadsync/internal/database"
	"leadsync/internal/models"

	yamlv2 "gopkg.in/yaml.v2"
)

type tenantsConfig struct {
	Tenants []*models.Tenant `yaml:"tenants"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		tenantsPath = flag.String("tenants", "configs/tenants.yaml", "path to tenants.yaml")
		dbPath      = flag.String("db", "./data/leadsync.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*tenantsPath)
	if err != nil {
		return fmt.Errorf("read tenants: %w", err)
	}
	var cfg tenantsConfig
	if err = yamlv2.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse tenants: %w", err)
	}
	if len(cfg.Tenants) == 0 {
		return fmt.Errorf("no tenants in yaml")
	}

	db, err := database.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	imported := 0
	for _, t := range cfg.Tenants {
		if t.ID == 0 || t.SpreadsheetID == "" {
			fmt.Printf("skipped: id=%d name=%q (missing id or spreadsheet)\n", t.ID, t.Name)
			continue
		}
		if err = db.UpsertTenant(ctx, t); err != nil {
			return fmt.Errorf("upsert tenant %d: %w", t.ID, err)
		}
		imported++
	}

	fmt.Printf("done: imported=%d\n", imported)
	return nil
}
