package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-agency/internal/db"
	"github.com/noah-isme/backend-agency/internal/invoice"
)

// seeder creates a demo project with one unpaid invoice for local checkout testing.
func main() {
	tenantFlag := flag.String("tenant", "", "tenant uuid (random when empty)")
	title := flag.String("project", "Demo website build", "project title")
	amount := flag.String("amount", "250.00", "invoice amount")
	dueIn := flag.Duration("due-in", 14*24*time.Hour, "time until the invoice is due")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	tenantID := uuid.New()
	if *tenantFlag != "" {
		parsed, err := uuid.Parse(*tenantFlag)
		if err != nil {
			log.Fatalf("invalid tenant id: %v", err)
		}
		tenantID = parsed
	}
	invoiceAmount, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatalf("invalid amount: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dbURL, "agency-seeder")
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	projectID := uuid.New()
	clientID := uuid.New()
	if _, err := pool.Exec(ctx,
		`INSERT INTO projects (id, tenant_id, client_id, title) VALUES ($1, $2, $3, $4)`,
		projectID, tenantID, clientID, *title,
	); err != nil {
		log.Fatalf("insert project: %v", err)
	}

	svc := &invoice.Service{
		Repo:     invoice.NewPGRepository(pool),
		Projects: invoice.NewPGProjectLookup(pool),
		Logger:   zerolog.Nop(),
	}
	inv, err := svc.Create(ctx, tenantID, projectID, invoice.CreateInput{
		Amount:      invoiceAmount,
		Description: "Seeded invoice",
		DueDate:     time.Now().UTC().Add(*dueIn),
	})
	if err != nil {
		log.Fatalf("create invoice: %v", err)
	}

	log.Printf("tenant=%s project=%s invoice=%s number=%s amount=%s", tenantID, projectID, inv.ID, inv.Number, inv.Amount.StringFixed(2))
	log.Println("Seeding completed successfully!")
}
