package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kapu/sales-intel-go/internal/domain"
	"github.com/kapu/sales-intel-go/internal/service/archive"
	"github.com/kapu/sales-intel-go/internal/service/database"
	"go.uber.org/zap"
)

// CLI flags
var (
	dir     = flag.String("dir", "reports", "Directory of report JSON files (intel report -o)")
	dryRun  = flag.Bool("dry-run", false, "Validate files without writing to the database")
	dbHost  = flag.String("db-host", "localhost", "PostgreSQL host")
	dbPort  = flag.Int("db-port", 5432, "PostgreSQL port")
	dbUser  = flag.String("db-user", "sales_intel", "PostgreSQL user")
	dbPass  = flag.String("db-pass", "", "PostgreSQL password")
	dbName  = flag.String("db-name", "sales_intel", "PostgreSQL database")
	sslMode = flag.String("db-sslmode", "disable", "PostgreSQL sslmode")
	verbose = flag.Bool("verbose", false, "Verbose output")
)

func main() {
	flag.Parse()

	log.Println("==========================")
	log.Println("Report archive import")
	log.Println("==========================")

	if err := run(); err != nil {
		log.Fatalf("Import failed: %v", err)
	}
}

// run keeps all deferred cleanup inside a normal return path.
func run() error {
	if *dryRun {
		log.Println("[DRY RUN MODE] No database changes will be made")
	}

	// Step 1: Load report files
	reports, err := loadReports(*dir)
	if err != nil {
		return fmt.Errorf("load reports: %w", err)
	}
	log.Printf("✓ Loaded %d reports from %s", len(reports), *dir)

	// Step 2: Validate
	if err := validateReports(reports); err != nil {
		return fmt.Errorf("validate reports: %w", err)
	}
	log.Println("✓ Report validation passed")

	if *dryRun {
		log.Println("✓ Dry-run completed successfully")
		return nil
	}

	// Step 3: Connect and insert in a single transaction
	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	postgres, err := database.NewPostgresService(database.PostgresConfig{
		Host:     *dbHost,
		Port:     *dbPort,
		User:     *dbUser,
		Password: *dbPass,
		Database: *dbName,
		SSLMode:  *sslMode,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer postgres.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store := archive.NewReportArchive(postgres, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}

	imported, skipped, err := store.Import(ctx, reports)
	if err != nil {
		return fmt.Errorf("import rolled back: %w", err)
	}

	log.Printf("✓ Imported %d reports, skipped %d existing", imported, skipped)
	return nil
}

// loadReports reads every *.json file in dir, sorted by name.
func loadReports(dir string) ([]*domain.Report, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	reports := make([]*domain.Report, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var r domain.Report
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		reports = append(reports, &r)
	}
	return reports, nil
}

func validateReports(reports []*domain.Report) error {
	seen := make(map[string]bool, len(reports))
	for _, r := range reports {
		if _, err := uuid.Parse(r.ID); err != nil {
			return fmt.Errorf("report %q: id is not a UUID", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("report %s: duplicate id", r.ID)
		}
		seen[r.ID] = true

		if strings.TrimSpace(r.Markdown) == "" {
			return fmt.Errorf("report %s: empty markdown", r.ID)
		}
		if r.Seller.IsEmpty() && r.Buyer.IsEmpty() {
			return fmt.Errorf("report %s: no seller or buyer profile", r.ID)
		}
	}
	return nil
}
