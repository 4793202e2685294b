// File: cmd/codes/main.go
//
// codes issues a batch of activation codes straight against the database and
// prints them one per line, for operators without an admin token.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"product-entitlements/internal/config"
	"product-entitlements/internal/domain/model"
	"product-entitlements/internal/infra/catalog"
	pg "product-entitlements/internal/infra/db/postgres"
	"product-entitlements/internal/infra/logging"
	"product-entitlements/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	level := flag.String("level", "", "membership level to grant (monthly, quarterly, yearly, lifetime)")
	product := flag.String("product", "", "product slug to grant")
	qty := flag.Int("n", 10, "number of codes")
	duration := flag.Int("duration", -1, "override grant length in days (-1: default)")
	expiresIn := flag.Int("expires-in", 0, "days until unused codes expire (0: never)")
	issuedBy := flag.String("issued-by", "cli", "recorded as the issuing admin")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	grant, err := grantFromFlags(*level, *product)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	products, err := catalog.FromConfig(cfg.Products)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	uc := usecase.NewActivationUseCase(
		pg.NewActivationCodeRepo(pool),
		pg.NewMembershipRepo(pool),
		pg.NewPostgresPurchaseRepo(pool),
		products,
		pg.NewTxManager(pool),
		nil,
		usecase.ActivationConfig{MinBatch: cfg.Activation.MinBatch, MaxBatch: cfg.Activation.MaxBatch},
		logger,
	)

	req := usecase.GenerateRequest{Grant: grant, Quantity: *qty, IssuedBy: *issuedBy}
	if *duration >= 0 {
		req.DurationDays = duration
	}
	if *expiresIn > 0 {
		req.ExpiresInDays = expiresIn
	}

	batch, err := uc.GenerateBatch(ctx, req, time.Now().UTC())
	if err != nil {
		log.Fatalf("generate: %v", err)
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for _, c := range batch.Codes {
		fmt.Fprintln(w, c.Code)
	}
	fmt.Fprintf(os.Stderr, "batch %s: %d codes\n", batch.ID, len(batch.Codes))
}

func grantFromFlags(level, product string) (model.Grant, error) {
	switch {
	case level != "" && product != "":
		return model.Grant{}, fmt.Errorf("use either -level or -product, not both")
	case level != "":
		l, err := model.ParseLevel(level)
		if err != nil {
			return model.Grant{}, err
		}
		return model.MembershipGrant(l), nil
	case product != "":
		return model.ProductGrant(product), nil
	default:
		return model.Grant{}, fmt.Errorf("one of -level or -product is required")
	}
}
