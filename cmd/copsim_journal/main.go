// Command copsim_journal reads the run journal written by the car programs
// from its SQLite or PostgreSQL database.
//
//	copsim_journal [--config DIR] runs [--limit N]
//	copsim_journal [--config DIR] events RUN
//	copsim_journal [--config DIR] export [--out DIR] [--gzip] RUN...
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"github.com/alamak-sim/copsimcar/internal/config"
	"github.com/alamak-sim/copsimcar/internal/database"
	"github.com/alamak-sim/copsimcar/internal/logging"
	"github.com/alamak-sim/copsimcar/internal/storage/memory"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: copsim_journal [--config DIR] runs [--limit N]")
	fmt.Fprintln(w, "       copsim_journal [--config DIR] events RUN")
	fmt.Fprintln(w, "       copsim_journal [--config DIR] export [--out DIR] [--gzip] RUN...")
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("copsim_journal", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	configDir := fs.String("config", ".", "directory holding copsim_car.cfg.json")
	if err := fs.Parse(args); err != nil {
		usage(out)
		return err
	}
	if fs.NArg() == 0 {
		usage(out)
		return nil
	}

	log := logging.NewZerolog(os.Stderr, "warn", "journal")
	if err := config.Load(*configDir); err != nil {
		log.Warn().Err(err).Msg("Using default configuration")
	}

	db, err := open(config.GetStorageConfig(), log)
	if err != nil {
		return err
	}
	defer database.Close(db)

	cmd, rest := strings.ToLower(fs.Arg(0)), fs.Args()[1:]
	switch cmd {
	case "runs":
		return listRuns(db, rest, out)
	case "events":
		return listEvents(db, rest, out)
	case "export":
		return export(db, rest, out)
	default:
		usage(out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// open connects to the configured journal database. An in-memory SQLite
// journal is read from its dump.
func open(cfg config.StorageConfig, log zerolog.Logger) (*gorm.DB, error) {
	switch cfg.Type {
	case "postgres":
		return database.OpenPostgres(cfg.Postgres, log)
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = cfg.SQLite.DumpPath
		}
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("journal database: %w", err)
		}
		return database.OpenSQLite(path, log)
	default:
		return nil, fmt.Errorf("storage type %q has no database; its runs are JSON files in %s",
			cfg.Type, cfg.Memory.OutputDir)
	}
}

func listRuns(db *gorm.DB, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("runs", pflag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of runs to show, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	runs, err := database.ListRuns(db, *limit)
	if err != nil {
		return err
	}

	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPROGRAM\tPORT\tSTART\tDURATION\tCYCLES\tRESETS\tEXIT")
	for _, r := range runs {
		exit := r.ExitReason
		if r.EndTime == nil {
			exit = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\t%d\t%s\n",
			r.UUID, r.Program, r.Port, r.StartTime.Local().Format(time.DateTime),
			r.Duration(now).Truncate(time.Second), r.Cycles, r.Resets, exit)
	}
	return tw.Flush()
}

func listEvents(db *gorm.DB, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("events needs exactly one run")
	}
	r, err := database.FindRun(db, args[0])
	if err != nil {
		return err
	}
	events, err := database.RunEvents(db, r.ID)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCYCLE\tKIND\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			e.Time.Local().Format("15:04:05.000"), e.Cycle, e.Kind, e.Detail)
	}
	return tw.Flush()
}

func export(db *gorm.DB, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	dir := fs.String("out", ".", "output directory")
	compress := fs.Bool("gzip", false, "gzip the JSON files")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("export needs at least one run")
	}
	if err := os.MkdirAll(*dir, 0755); err != nil {
		return err
	}

	for _, id := range fs.Args() {
		txStart := time.Now()
		r, err := database.FindRun(db, id)
		if err != nil {
			return err
		}
		data := memory.Export{Run: r}
		if data.Events, err = database.RunEvents(db, r.ID); err != nil {
			return err
		}
		if data.Statuses, err = database.RunStatuses(db, r.ID); err != nil {
			return err
		}

		name := fmt.Sprintf("%s_%s.json", r.Program, r.UUID)
		if *compress {
			name += ".gz"
		}
		path := filepath.Join(*dir, name)
		if err := memory.WriteExport(path, data, *compress); err != nil {
			return fmt.Errorf("exporting run %s: %w", r.UUID, err)
		}
		fmt.Fprintf(out, "%s: %d events, %d statuses in %s\n",
			path, len(data.Events), len(data.Statuses), time.Since(txStart).Round(time.Millisecond))
	}
	return nil
}
