package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sealflow/sealflow/backend/go-services/internal/audit"
	"github.com/sealflow/sealflow/backend/go-services/internal/config"
	"github.com/sealflow/sealflow/backend/go-services/internal/database"
	"github.com/sealflow/sealflow/backend/go-services/internal/envelope/repository"
	"github.com/sealflow/sealflow/backend/go-services/internal/ids"
	"github.com/sealflow/sealflow/backend/go-services/internal/invitations"
	"github.com/sealflow/sealflow/backend/go-services/internal/rules"
	"github.com/sealflow/sealflow/backend/go-services/internal/signing"
	"github.com/sealflow/sealflow/backend/go-services/internal/workflow"
)

// Standalone expiry sweeper. Runs the overdue-envelope sweep once and exits,
// or loops when SWEEP_INTERVAL_MINUTES is set. Intended for deployments that
// run the sweep as a cron job or sidecar instead of inside the API process.
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoDB.URI == "" {
		log.Fatal("MONGODB_URI is required")
	}

	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
	if err != nil {
		log.Fatalf("cannot connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()
	db := client.Database(cfg.MongoDB.Database)

	svc := workflow.NewService(
		repository.NewMongoEnvelopes(db.Collection("envelopes")),
		repository.NewMongoSigners(db.Collection("signers")),
		repository.NewMongoSignatures(db.Collection("signatures")),
		invitations.NewService(invitations.NewMongoRepository(db.Collection("invitation_tokens"))),
		signing.NewLocalProvider([]byte(cfg.Signing.Key)),
		audit.NewRecorder(audit.NewMongoSink(db.Collection("audit_events")), func() string {
			id, err := ids.New("aud")
			if err != nil {
				return fmt.Sprintf("aud_%d", time.Now().UnixNano())
			}
			return id
		}),
		workflow.Config{
			Rules: rules.Config{
				MaxResends:       cfg.Workflow.MaxResends,
				ReminderCooldown: cfg.Workflow.ReminderCooldown,
			},
			InvitationTTL:    cfg.Workflow.InvitationTTL,
			DefaultAlgorithm: cfg.Signing.DefaultAlgorithm,
		},
	)

	sweep := func() {
		n, err := svc.ExpireOverdue(ctx)
		if err != nil {
			log.Printf("sweep failed: %v", err)
			return
		}
		log.Printf("sweep complete: %d envelopes expired", n)
	}

	if v := os.Getenv("SWEEP_INTERVAL_MINUTES"); v != "" {
		var mins int
		if _, err := fmt.Sscanf(v, "%d", &mins); err != nil || mins <= 0 {
			log.Fatalf("invalid SWEEP_INTERVAL_MINUTES: %q", v)
		}
		log.Printf("sweeping every %d minutes", mins)
		ticker := time.NewTicker(time.Duration(mins) * time.Minute)
		defer ticker.Stop()
		sweep()
		for range ticker.C {
			sweep()
		}
	}
	sweep()
}
