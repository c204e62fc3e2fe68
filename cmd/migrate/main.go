package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/stocksync-backend/pkg/config"
	"github.com/angelmondragon/stocksync-backend/pkg/db"
	"github.com/angelmondragon/stocksync-backend/pkg/logger"
	"github.com/angelmondragon/stocksync-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the set built into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	// create and validate work on files only and run before config is required.
	switch *cmd {
	case "create":
		outDir := *dir
		if outDir == "" {
			outDir = migrate.DefaultDir
		}
		path, err := migrate.Create(outDir, *name, time.Now())
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.ValidateDir(*dir), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	if cfg.DB.IsSQLite() {
		exitOn(fmt.Errorf("driver %q builds its schema from models; goose migrations target postgres", cfg.DB.Driver), "migrate")
	}

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	client, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "connect database")
	defer client.Close()

	sqlDB, err := client.DB().DB()
	exitOn(err, "extract sql.DB")
	source, err := migrate.Source(*dir)
	exitOn(err, "open migrations")
	migrator, err := migrate.NewMigrator(sqlDB, source)
	exitOn(err, "init migrator")

	switch *cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		printSteps(applied)
		exitOn(err, "migrate up")
	case "down":
		step, err := migrator.Down(ctx)
		exitOn(err, "migrate down")
		if step != nil {
			printSteps([]migrate.Step{*step})
		}
	case "to":
		version, err := migrate.ParseVersion(*target)
		exitOn(err, "parse -version")
		moved, err := migrator.To(ctx, version)
		printSteps(moved)
		exitOn(err, "migrate to version")
	case "status":
		rows, err := migrator.Status(ctx)
		exitOn(err, "migration status")
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied " + row.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Printf("%d  %-45s %s\n", row.Version, row.Path, state)
		}
	default:
		exitOn(fmt.Errorf("unknown -cmd %q", *cmd), "migrate")
	}
	logg.Info(ctx, "migrate finished")
}

func printSteps(steps []migrate.Step) {
	for _, s := range steps {
		fmt.Printf("%-4s %d %s (%s)\n", s.Direction, s.Version, s.Path, s.Duration.Round(time.Millisecond))
	}
}

func exitOn(err error, action string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
