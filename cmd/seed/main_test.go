package main

import (
	"context"
	"testing"

	"github.com/shinyyama/referral-tree-backend/internal/repository"
	"github.com/shinyyama/referral-tree-backend/internal/service"
	"github.com/shinyyama/referral-tree-backend/internal/testutil"
)

func TestSeedTree(t *testing.T) {
	ctx := context.Background()
	svc := service.NewReferralService(repository.NewStore(testutil.NewDB(t)), service.Options{})

	ids, err := seedTree(ctx, svc, demoTree)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(ids) != len(demoTree) {
		t.Fatalf("ids=%v", ids)
	}
	sb, err := svc.Scoreboard(ctx, ids[0])
	if err != nil {
		t.Fatalf("scoreboard: %v", err)
	}
	// Bob's side: 10+5+8+3, Carol's side: 20+12
	if sb.LeftPoints != 26 || sb.RightPoints != 32 {
		t.Fatalf("scoreboard=%+v", sb)
	}
}

func TestSeedTreeRejectsForwardReference(t *testing.T) {
	svc := service.NewReferralService(repository.NewStore(testutil.NewDB(t)), service.Options{})
	_, err := seedTree(context.Background(), svc, []seedUser{{Name: "A", Referrer: 1}})
	if err == nil {
		t.Fatal("expected error")
	}
}
