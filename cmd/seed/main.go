package main

import (
	"context"
	"fmt"
	"log"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"github.com/shinyyama/referral-tree-backend/internal/config"
	"github.com/shinyyama/referral-tree-backend/internal/db"
	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/service"
)

type seedConfig struct {
	ForceSeed bool `env:"FORCE_SEED" envDefault:"false"`
}

// seedUser refers to its referrer by index into the seed slice; -1 is the root.
type seedUser struct {
	Name     string
	Points   int64
	Referrer int
}

var demoTree = []seedUser{
	{Name: "Alice", Points: 100, Referrer: -1},
	{Name: "Bob", Points: 10, Referrer: 0},
	{Name: "Carol", Points: 20, Referrer: 0},
	{Name: "Dave", Points: 5, Referrer: 1},
	{Name: "Erin", Points: 8, Referrer: 1},
	{Name: "Frank", Points: 12, Referrer: 2},
	{Name: "Grace", Points: 3, Referrer: 3},
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var scfg seedConfig
	if err := env.Parse(&scfg); err != nil {
		return fmt.Errorf("load seed config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	store := repository.NewStore(gdb)
	svc := service.NewReferralService(store, service.Options{MaxDepth: cfg.MaxTreeDepth})

	n, err := store.Users().Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		if !scfg.ForceSeed {
			log.Printf("users already exist; skipping seed (set FORCE_SEED=true to override)")
			return nil
		}
		if err := svc.ResetSystem(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}

	ids, err := seedTree(ctx, svc, demoTree)
	if err != nil {
		return err
	}
	sb, err := svc.Scoreboard(ctx, ids[0])
	if err != nil {
		return fmt.Errorf("scoreboard: %w", err)
	}
	log.Printf("seeded %d users; root=%s left=%d right=%d", len(ids), sb.UserName, sb.LeftPoints, sb.RightPoints)
	return nil
}

func seedTree(ctx context.Context, svc service.ReferralService, users []seedUser) ([]uint64, error) {
	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		in := service.RegisterInput{Name: u.Name, InitialPoints: u.Points}
		if u.Referrer >= 0 {
			if u.Referrer >= len(ids) {
				return nil, fmt.Errorf("seed %s: referrer index %d not seeded yet", u.Name, u.Referrer)
			}
			ref := ids[u.Referrer]
			in.ReferrerID = &ref
		}
		id, err := svc.Register(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", u.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
