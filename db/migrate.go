package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/KAsare1/postly/cmd/models"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// Migrate creates or updates every table, constraint and index, then makes sure the
// media directories exist.
func Migrate(db *gorm.DB, mediaRoot string) error {
	slog.Info("Starting database migrations...")
	for _, model := range models.All() {
		slog.Info("Migrating table", "model", fmt.Sprintf("%T", model))
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %T: %w", model, err)
		}
	}

	if mediaRoot != "" {
		dir := filepath.Join(mediaRoot, "posts")
		if err := createDirectoryIfNotExist(dir); err != nil {
			return err
		}
		slog.Info("Media directory created/verified", "dir", dir)
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// ClearDatabase drops the named tables, or all of them when names is empty.
// Children are dropped before their parents.
func ClearDatabase(db *gorm.DB, names []string) error {
	tables, err := resolveTables(names)
	if err != nil {
		return err
	}

	for i := len(tables) - 1; i >= 0; i-- {
		table := tables[i]
		if err := db.Migrator().DropTable(table); err != nil {
			return fmt.Errorf("dropping %T: %w", table, err)
		}
		slog.Info("Table dropped", "model", fmt.Sprintf("%T", table))
	}
	return nil
}

// resolveTables maps model names to models, keeping dependency order whatever order
// the names came in.
func resolveTables(names []string) ([]interface{}, error) {
	all := models.All()
	if len(names) == 0 {
		return all, nil
	}

	known := lo.Map(all, func(model interface{}, _ int) string {
		return reflect.TypeOf(model).Elem().Name()
	})
	if unknown, _ := lo.Difference(names, known); len(unknown) > 0 {
		return nil, fmt.Errorf("unknown table: %s", strings.Join(unknown, ", "))
	}

	return lo.Filter(all, func(_ interface{}, i int) bool {
		return lo.Contains(names, known[i])
	}), nil
}

func createDirectoryIfNotExist(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("could not create directory %s: %w", path, err)
		}
	}
	return nil
}
