package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-wenjoy/internal/payment"
	"github.com/noah-isme/toko-wenjoy/internal/store"
)

// seeder upserts a sale order so a checkout can be exercised against a fresh database.
func main() {
	var (
		orderID = flag.String("order", "SO001", "sale order id")
		name    = flag.String("name", "", "sale order name; defaults to the id")
		email   = flag.String("email", "buyer@example.com", "customer email")
		amount  = flag.Float64("amount", 150000, "order total in the major currency unit")
		migrate = flag.Bool("migrate", true, "apply embedded migrations first")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	if *migrate {
		if err := store.Migrate(dbURL, os.Getenv("MIGRATIONS_PATH")); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer pool.Close()

	orderName := *name
	if orderName == "" {
		orderName = *orderID
	}
	pg := store.NewPostgres(pool)
	if err := pg.SaveOrder(ctx, payment.Order{
		ID:            *orderID,
		Name:          orderName,
		State:         payment.OrderStateDraft,
		CustomerEmail: *email,
		AmountTotal:   *amount,
	}); err != nil {
		log.Fatalf("save order: %v", err)
	}
	log.Printf("seeded order %s (%s) for %.2f", *orderID, orderName, *amount)
}
