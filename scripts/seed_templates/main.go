// Command seed_templates inserts a default global promotion ladder so a
// fresh environment has something to level against. Existing active
// global templates are left untouched; pass -force to deactivate them
// and reseed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/clubpulse/clubpulse-api/internal/models"
	"github.com/clubpulse/clubpulse-api/internal/repository"
	"github.com/clubpulse/clubpulse-api/pkg/config"
	"github.com/clubpulse/clubpulse-api/pkg/database"
)

func main() {
	var (
		force   bool
		timeout time.Duration
	)
	flag.BoolVar(&force, "force", false, "deactivate existing global templates before seeding")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repo := repository.NewTemplateRepository(db)

	existing, err := repo.ListActiveGlobal(ctx)
	if err != nil {
		log.Fatalf("failed to list global templates: %v", err)
	}
	if len(existing) > 0 {
		if !force {
			log.Printf("found %d active global templates, nothing to do (use -force to reseed)", len(existing))
			return
		}
		for _, tpl := range existing {
			if err := repo.Deactivate(ctx, tpl.ID); err != nil {
				log.Fatalf("failed to deactivate template %s: %v", tpl.ID, err)
			}
		}
		log.Printf("deactivated %d existing global templates", len(existing))
	}

	for _, tpl := range defaultLadder() {
		tpl := tpl
		if err := repo.Create(ctx, &tpl); err != nil {
			log.Fatalf("failed to insert level %d: %v", tpl.LevelNumber, err)
		}
		log.Printf("seeded level %d (%s) with %d missions", tpl.LevelNumber, tpl.Title, len(tpl.Missions))
	}

	fmt.Println("global ladder seeded")
}

func defaultLadder() []models.LevelTemplate {
	return []models.LevelTemplate{
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 1,
			Title:       "Newcomer",
			Description: "First steps on the scene",
			Missions: models.MissionTemplateList{
				{Type: models.MissionAttendEvent, Title: "Attend your first event", Target: 1, Order: 1, Active: true},
				{Type: models.MissionFollowUsers, Title: "Follow 3 clubs or people", Target: 3, Order: 2, Active: true},
			},
			Reward: models.Reward{Type: models.RewardBadge, Title: "Newcomer badge"},
			Active: true,
		},
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 2,
			Title:       "Regular",
			Description: "You keep showing up",
			Missions: models.MissionTemplateList{
				{Type: models.MissionAttendEvent, Title: "Attend 5 events", Target: 5, Order: 1, Active: true},
				{Type: models.MissionScanQR, Title: "Scan a door QR code", Target: 1, Order: 2, Active: true},
				{Type: models.MissionShareLink, Title: "Share an event link", Target: 1, Order: 3, Active: true},
			},
			Reward: models.Reward{Type: models.RewardDrinkVoucher, Title: "Free drink", ValueText: "1"},
			Active: true,
		},
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 3,
			Title:       "Insider",
			Description: "Part of the crowd",
			Missions: models.MissionTemplateList{
				{Type: models.MissionAttendEvent, Title: "Attend 15 events", Target: 15, Order: 1, Active: true},
				{Type: models.MissionCollectStamps, Title: "Collect 5 night stamps", Target: 5, Order: 2, Active: true},
				{Type: models.MissionUploadPhoto, Title: "Upload a crowd photo", Target: 1, Order: 3, Active: true, RequiresApproval: true},
			},
			Reward: models.Reward{Type: models.RewardFreeEntry, Title: "Free entry", ValueText: "1"},
			Active: true,
		},
		{
			Scope:       models.ScopeGlobal,
			LevelNumber: 4,
			Title:       "VIP",
			Description: "The door knows your name",
			Missions: models.MissionTemplateList{
				{Type: models.MissionAttendEvent, Title: "Attend 40 events", Target: 40, Order: 1, Active: true},
				{Type: models.MissionFollowUsers, Title: "Follow 20 clubs or people", Target: 20, Order: 2, Active: true},
				{Type: models.MissionUploadPhoto, Title: "Upload 5 approved photos", Target: 5, Order: 3, Active: true, RequiresApproval: true},
			},
			Reward: models.Reward{Type: models.RewardVIPTable, Title: "VIP table night", ValueText: "1"},
			Active: true,
		},
	}
}
