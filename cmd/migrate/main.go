package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/linguamate-backend/pkg/config"
	"github.com/angelmondragon/linguamate-backend/pkg/db"
	"github.com/angelmondragon/linguamate-backend/pkg/logger"
	"github.com/angelmondragon/linguamate-backend/pkg/migrate"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|status|version|to|create|validate")
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create and validate, or with -embedded=false")
	embedded := flag.Bool("embedded", true, "use the migrations compiled into the binary")
	name := flag.String("name", "", "migration name for -cmd=create")
	target := flag.String("target", "", "version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	// create and validate only touch the filesystem
	switch *cmd {
	case "create":
		path, err := migrate.CreateSQLMigration(*dir, *name)
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.ValidateDir(*dir), "validate migrations")
		fmt.Println("migrations ok")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmd,
		"embedded": *embedded,
	})

	if err := run(ctx, cfg, logg, *cmd, *dir, *embedded, *target); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd, dir string, embedded bool, target string) error {
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}

	var source fs.FS
	if !embedded {
		source = os.DirFS(dir)
	}
	migrator, err := migrate.NewMigrator(sqlDB, source)
	if err != nil {
		return err
	}
	defer migrator.Close()

	switch cmd {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "applied", applied), "migrate.up.done")
	case "down":
		version, err := migrator.Down(ctx)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "rolled_back", version), "migrate.down.done")
	case "to":
		version, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			return fmt.Errorf("-target %q: %w", target, err)
		}
		if err := migrator.To(ctx, version); err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "version", version), "migrate.to.done")
	case "version":
		version, err := migrator.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
	case "status":
		rows, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(rows)
	default:
		return errors.New("unknown -cmd " + cmd)
	}
	return nil
}

func printStatus(rows []migrate.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.Path)
	}
	_ = w.Flush()
}

func exitOn(err error, action string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", action, err)
	os.Exit(1)
}
