// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/unclebandit/voicedrop-backend/internal/config"
	"github.com/unclebandit/voicedrop-backend/internal/db"
	"github.com/unclebandit/voicedrop-backend/internal/logger"
)

func main() {
	schema := flag.String("schema", "db/schema.sql", "schema file applied before seeding")
	seedDir := flag.String("seed-dir", "seed", "directory of *.sql seed files, applied in name order")
	schemaOnly := flag.Bool("schema-only", false, "apply the schema and skip seed data")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}
	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	conn, err := db.Open(context.Background(), cfg.Database.Postgres)
	if err != nil {
		zapLog.Fatal("database unavailable", zap.Error(err))
	}
	defer conn.Close()

	files := []string{*schema}
	if !*schemaOnly {
		seeds, err := seedFiles(*seedDir)
		if err != nil {
			zapLog.Fatal("failed to list seed files", zap.Error(err))
		}
		files = append(files, seeds...)
	}

	if err := apply(context.Background(), conn, files, log); err != nil {
		zapLog.Fatal("seeding failed", zap.Error(err))
	}
	log.Info("database seeding completed", map[string]interface{}{"files": len(files)})
}

func seedFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// apply executes each file as one statement batch, stopping at the first failure.
func apply(ctx context.Context, conn *sql.DB, files []string, log logger.Logger) error {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
		log.Info("seeded", map[string]interface{}{"file": file})
	}
	return nil
}
