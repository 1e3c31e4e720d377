// Command ese2sqlite flattens one or more tables of an ESE database
// into a SQLite file, for use by analysis tooling that already speaks
// SQL. It has no direct original_source analogue; its role — exporing
// a read-only decoded view into a queryable store — is squarely in
// scope for a read-only forensic decoder (spec §1's "offline analysis
// tools").
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/fox-it/go-esedb"
)

// Config describes which tables (and, within them, which columns) to
// mirror into SQLite, and an optional cron schedule for re-running the
// export — the YAML-backed settings convention the teacher's own
// cmd/server and cmd/studio tools use for their own configuration.
type Config struct {
	Tables   []TableConfig `yaml:"tables"`
	Schedule string        `yaml:"schedule"` // cron expression; empty = run once
}

type TableConfig struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"` // empty = every column
}

func loadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("ese2sqlite: parse config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config describing which tables/columns to export")
		tableFlag  = flag.String("table", "", "export a single table (ignored if -config is set)")
		out        = flag.String("out", "export.sqlite", "output SQLite file")
		watch      = flag.String("watch", "", "re-run the export on this cron schedule instead of once")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ese2sqlite: export decoded ESE tables into a SQLite file\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [options] <database file>\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	srcPath := flag.Arg(0)

	var cfg Config
	if *configPath != "" {
		var err error
		cfg, err = loadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ese2sqlite:", err)
			os.Exit(1)
		}
	} else if *tableFlag != "" {
		cfg.Tables = []TableConfig{{Name: *tableFlag}}
	}
	if *watch != "" {
		cfg.Schedule = *watch
	}

	run := func() error { return exportOnce(srcPath, *out, cfg) }

	if cfg.Schedule == "" {
		if err := run(); err != nil {
			fmt.Fprintln(os.Stderr, "ese2sqlite:", err)
			os.Exit(1)
		}
		return
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := run(); err != nil {
			fmt.Fprintln(os.Stderr, "ese2sqlite: scheduled export failed:", err)
		} else {
			fmt.Fprintf(os.Stderr, "ese2sqlite: export refreshed at %s\n", time.Now().Format(time.RFC3339))
		}
	}); err != nil {
		fmt.Fprintln(os.Stderr, "ese2sqlite: invalid schedule:", err)
		os.Exit(1)
	}
	c.Start()
	fmt.Fprintf(os.Stderr, "ese2sqlite: watching on schedule %q, press Ctrl+C to stop\n", cfg.Schedule)
	select {} // block forever; the process is stopped externally
}

func exportOnce(srcPath, outPath string, cfg Config) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	db, err := esedb.Open(f)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer db.Close()

	os.Remove(outPath)
	sqlDB, err := sql.Open("sqlite", outPath)
	if err != nil {
		return fmt.Errorf("open sqlite file %s: %w", outPath, err)
	}
	defer sqlDB.Close()

	tables := cfg.Tables
	if len(tables) == 0 {
		for _, name := range db.TableNames() {
			tables = append(tables, TableConfig{Name: name})
		}
	}

	ctx := context.Background()
	for _, tc := range tables {
		tbl, err := db.Table(tc.Name)
		if err != nil {
			return err
		}
		if err := exportTable(ctx, sqlDB, tbl, tc); err != nil {
			return fmt.Errorf("export table %q: %w", tc.Name, err)
		}
	}
	return nil
}

func exportTable(ctx context.Context, sqlDB *sql.DB, tbl *esedb.Table, tc TableConfig) error {
	cols := tc.Columns
	if len(cols) == 0 {
		cols = tbl.ColumnNames()
	}

	sqlName := sanitizeIdentifier(tbl.Name)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = sanitizeIdentifier(c)
	}

	createSQL := fmt.Sprintf("CREATE TABLE %q (%s)", sqlName, columnDefs(quoted))
	if _, err := sqlDB.ExecContext(ctx, createSQL); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	insertSQL := fmt.Sprintf("INSERT INTO %q VALUES (%s)", sqlName, placeholders)

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}

	var rowErr error
	args := make([]any, len(cols))
	if err := tbl.Records(func(r *esedb.Record) bool {
		for i, c := range cols {
			v, _ := r.Get(c)
			args[i] = sqliteValue(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			rowErr = err
			return false
		}
		return true
	}); err != nil {
		tx.Rollback()
		return err
	}
	if rowErr != nil {
		tx.Rollback()
		return rowErr
	}
	return tx.Commit()
}

func columnDefs(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%q", n)
	}
	return strings.Join(parts, ", ")
}

// sqliteValue flattens a decoded column value into something
// database/sql's driver can bind: multi-values become a "; "-joined
// string, since SQLite has no native array column type.
func sqliteValue(v any) any {
	switch t := v.(type) {
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fmt.Sprint(sqliteValue(e))
		}
		return strings.Join(parts, "; ")
	default:
		return v
	}
}

func sanitizeIdentifier(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
