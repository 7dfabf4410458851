// Command migrate applies the embedded database migrations and exits.
// Useful for applying schema changes out-of-band, e.g. from CI.
package main

import (
	"context"
	"database/sql"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/contactkeeper/internal/config"
	"github.com/dmitrijs2005/contactkeeper/internal/repositories/repomanager"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	log.Println("migrations applied")
}
