// seed inserts development operators and a sample cheque for local testing.
// Idempotent: skips everything if the dev admin (admin@example.com) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	chequeservice "cheque-custody/backend/internal/cheque/service"
	"cheque-custody/backend/internal/config"
	"cheque-custody/backend/internal/custody/repository"
	"cheque-custody/backend/internal/db"
	"cheque-custody/backend/internal/operator/domain"
	operatorrepo "cheque-custody/backend/internal/operator/repository"
	operatorservice "cheque-custody/backend/internal/operator/service"
	"cheque-custody/backend/internal/security"
)

const devPassword = "password123"

var devOperators = []operatorservice.CreateInput{
	{Name: "Dev Admin", Email: "admin@example.com", Role: string(domain.RoleAdmin)},
	{Name: "Dev Initiator", Email: "initiator@example.com", Role: string(domain.RoleInitiator)},
	{Name: "Dev Dispatch", Email: "dispatch@example.com", Role: string(domain.RoleDispatch)},
	{Name: "Dev Reception", Email: "reception@example.com", Role: string(domain.RoleReception)},
	{Name: "Dev Approver", Email: "approver@example.com", Role: string(domain.RoleApprover)},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or export DATABASE_URL")
	}
	ctx := context.Background()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	operators := operatorrepo.NewPostgresRepository(conn)
	existing, err := operators.GetByEmail(ctx, devOperators[0].Email)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", existing.Email)
		return
	}

	auth := operatorservice.NewAuthService(operators, security.NewHasher(cfg.BcryptCost), nil)
	var initiatorID string
	for _, in := range devOperators {
		in.Password = devPassword
		o, err := auth.Create(ctx, in)
		if err != nil {
			log.Fatalf("create operator %s: %v", in.Email, err)
		}
		if o.Role == domain.RoleInitiator {
			initiatorID = o.ID
		}
		log.Printf("operator %s (%s) id=%s", o.Email, o.Role, o.ID)
	}

	lifecycle := chequeservice.NewLifecycle(repository.NewPostgresRepository(conn, cfg.LockTimeout), nil, nil)
	c, err := lifecycle.Create(ctx, chequeservice.CreateInput{
		ChequeNo:    "000123",
		Amount:      decimal.RequireFromString("125000.00"),
		Currency:    "INR",
		Bank:        "State Bank of India",
		Branch:      "MG Road",
		PayerName:   "Acme Traders",
		PayeeName:   "Northwind Supplies",
		DueDate:     time.Now().UTC().AddDate(0, 0, 7),
		InitiatorID: initiatorID,
	})
	if err != nil {
		log.Fatalf("create cheque: %v", err)
	}
	log.Printf("cheque %s id=%s status=%s", c.ChequeNo, c.ID, c.Status)
	log.Printf("Seed complete. All dev operators use password %q.", devPassword)
}
