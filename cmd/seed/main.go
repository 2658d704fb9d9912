// Command seed applies migrations and loads the baseline timetable plus
// optional admin and demo student accounts. Safe to rerun: every write is
// an upsert keyed on the row's natural identity.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"abstrack/internal/auth"
	"abstrack/internal/config"
	"abstrack/internal/store"
)

type seedModule struct {
	name, typ, teacher, room, day, start, end string
}

var timetable = []seedModule{
	{"Securite Informatique", "TD", "Benhami", "Salle cours", "Samedi", "11:10", "12:40"},
	{"Systeme d'exploitation 2", "TD", "Haifaoui", "Amphi Benbadis", "Dimanche", "09:35", "11:05"},
	{"Systeme d'exploitation 2", "TP", "Tilmatine", "lab 07", "Samedi", "14:20", "15:50"},
	{"Recherche d'information", "TD", "BELATTAR", "Salle 5 info", "Samedi", "12:45", "14:15"},
	{"Donnees semi structurees", "TP", "Izountar", "lab 1", "Dimanche", "14:20", "15:50"},
	{"Business Intelligence", "TD", "Taibouni", "Salle 1 info", "Mercredi", "08:00", "09:30"},
	{"Redaction Scientifique", "TD", "Boufedji", "-", "Mardi", "09:35", "11:05"},
	{"Projet", "TD", "Taibouni", "Salle 3 info", "Mercredi", "12:45", "14:15"},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	ctx := context.Background()
	if err := seed(ctx, db.Client); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Println("Seed complete.")
}

func seed(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := seedAdmin(ctx, tx); err != nil {
		return err
	}
	if err := seedDemoStudent(ctx, tx); err != nil {
		return err
	}
	if err := seedTimetable(ctx, tx); err != nil {
		return err
	}
	if err := seedWeeks(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func seedAdmin(ctx context.Context, tx *sql.Tx) error {
	email := os.Getenv("ADMIN_SEED_EMAIL")
	password := os.Getenv("ADMIN_SEED_PASSWORD")
	if email == "" || password == "" {
		log.Println("Admin seed skipped. Set ADMIN_SEED_EMAIL and ADMIN_SEED_PASSWORD to create one.")
		return nil
	}
	name := os.Getenv("ADMIN_SEED_NAME")
	if name == "" {
		name = "Main Administrator"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO admins (full_name, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			password_hash = EXCLUDED.password_hash
	`, name, email, hash)
	if err == nil {
		log.Printf("Admin account seeded for: %s", email)
	}
	return err
}

func seedDemoStudent(ctx context.Context, tx *sql.Tx) error {
	if os.Getenv("SEED_DEMO_STUDENT") != "1" {
		log.Println("Demo student seed skipped. Set SEED_DEMO_STUDENT=1 to create one.")
		return nil
	}
	email := os.Getenv("DEMO_STUDENT_EMAIL")
	if email == "" {
		email = "student@example.com"
	}
	name := os.Getenv("DEMO_STUDENT_NAME")
	if name == "" {
		name = "Etudiant Demo"
	}
	password := os.Getenv("DEMO_STUDENT_PASSWORD")
	if password == "" {
		password = "demo1234"
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO students (full_name, email, password_hash, group_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE
		SET full_name = EXCLUDED.full_name,
			password_hash = EXCLUDED.password_hash
	`, name, email, hash, "G1")
	if err == nil {
		log.Printf("Demo student seeded for: %s", email)
	}
	return err
}

func seedTimetable(ctx context.Context, tx *sql.Tx) error {
	for _, m := range timetable {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO modules (name, type, teacher, room, day_of_week, time_start, time_end)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name, type, day_of_week, time_start) DO UPDATE
			SET teacher = EXCLUDED.teacher,
				room = EXCLUDED.room,
				time_end = EXCLUDED.time_end
		`, m.name, m.typ, m.teacher, m.room, m.day, m.start, m.end)
		if err != nil {
			return err
		}
	}
	return nil
}

func seedWeeks(ctx context.Context, tx *sql.Tx) error {
	start := time.Date(2025, time.September, 6, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 14; i++ {
		weekStart := start.AddDate(0, 0, (i-1)*7)
		weekEnd := weekStart.AddDate(0, 0, 6)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO weeks (week_number, date_start, date_end, semester)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (semester, week_number) DO UPDATE
			SET date_start = EXCLUDED.date_start,
				date_end = EXCLUDED.date_end
		`, i, weekStart, weekEnd, "2025-S2")
		if err != nil {
			return err
		}
	}
	return nil
}
