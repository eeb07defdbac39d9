// Seeds a local database with sample inbound traffic so the relay can be
// exercised without a live bridge. Creates the bridge-owned messages/chats
// tables if they are missing and inserts a handful of conversations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"whatsapp-approval-relay/internal/config"
	pg "whatsapp-approval-relay/internal/infra/db/postgres"
)

const bridgeDDL = `
CREATE TABLE IF NOT EXISTS messages (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    sender_id       TEXT NOT NULL,
    content         TEXT,
    timestamp       TIMESTAMPTZ NOT NULL,
    is_from_me      BOOLEAN NOT NULL DEFAULT FALSE,
    media_type      TEXT,
    media_size      BIGINT
);
CREATE TABLE IF NOT EXISTS chats (
    conversation_id TEXT PRIMARY KEY,
    display_name    TEXT NOT NULL
);`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if err := pg.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("schema: %v", err)
	}
	if _, err := pool.Exec(ctx, bridgeDDL); err != nil {
		log.Fatalf("bridge schema: %v", err)
	}

	chats := map[string]string{
		"491700000001@s.whatsapp.net": "Alice Example",
		"491700000002@s.whatsapp.net": "Bob Example",
	}
	for id, name := range chats {
		_, err := pool.Exec(ctx, `
			INSERT INTO chats (conversation_id, display_name)
			VALUES ($1, $2)
			ON CONFLICT (conversation_id) DO UPDATE SET display_name = EXCLUDED.display_name
		`, id, name)
		if err != nil {
			log.Fatalf("seed chat %s: %v", id, err)
		}
	}

	// Timestamps are "now" so a relay that is already polling picks the rows
	// up on its next tick. Seed after starting the relay.
	now := time.Now()
	rows := []struct {
		id, conv, content string
	}{
		{"seed-1", "491700000001@s.whatsapp.net", "Hey,"},
		{"seed-2", "491700000001@s.whatsapp.net", "are you around later?"},
		{"seed-3", "491700000002@s.whatsapp.net", "Hi"},
	}
	for i, r := range rows {
		_, err := pool.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, timestamp, is_from_me)
			VALUES ($1, $2, $2, $3, $4, FALSE)
			ON CONFLICT (id) DO NOTHING
		`, r.id, r.conv, r.content, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			log.Fatalf("seed message %s: %v", r.id, err)
		}
	}

	fmt.Printf("Seeded %d chats and %d messages.\n", len(chats), len(rows))
	fmt.Println("Start the relay with -dev first, then seed, and watch the cards appear.")
}
