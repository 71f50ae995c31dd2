package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

func openOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.OutboxEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestEnqueue_Validation(t *testing.T) {
	db := openOutboxTestDB(t)
	if _, err := Enqueue(db, "", 1, nil); err == nil {
		t.Error("expected error for empty kind")
	}
	if _, err := Enqueue(db, models.EventSubmissionCreated, 0, nil); err == nil {
		t.Error("expected error for zero submission id")
	}
}

func TestEnqueue_CommittedEventIsPending(t *testing.T) {
	db := openOutboxTestDB(t)
	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := Enqueue(tx, models.EventSubmissionCreated, 7, map[string]any{"version": 1})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	pending, err := Pending(db, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	evt := pending[0]
	if evt.SubmissionID != 7 || evt.Kind != models.EventSubmissionCreated {
		t.Errorf("event = %+v", evt)
	}
	if len(evt.EventID) != 36 {
		t.Errorf("EventID = %q, want uuid", evt.EventID)
	}
	var payload map[string]any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["version"] != float64(1) {
		t.Errorf("payload = %v, want version 1", payload)
	}
}

func TestEnqueue_RollbackLeavesNoEvent(t *testing.T) {
	db := openOutboxTestDB(t)
	boom := errors.New("forced rollback")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := Enqueue(tx, models.EventSubmissionReviewed, 3, nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction err = %v, want forced rollback", err)
	}
	pending, _ := Pending(db, 10)
	if len(pending) != 0 {
		t.Errorf("pending = %d after rollback, want 0", len(pending))
	}
}

func TestClaim_OnlyOnce(t *testing.T) {
	db := openOutboxTestDB(t)
	evt, _ := Enqueue(db, models.EventSubmissionCreated, 1, nil)

	ok, err := Claim(db, evt.ID)
	if err != nil || !ok {
		t.Fatalf("first Claim = %v, %v; want true", ok, err)
	}
	ok, err = Claim(db, evt.ID)
	if err != nil || ok {
		t.Fatalf("second Claim = %v, %v; want false", ok, err)
	}
	pending, _ := Pending(db, 10)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestNewRelay_Validation(t *testing.T) {
	if _, err := NewRelay(RelayOpts{}); err == nil || !strings.Contains(err.Error(), "db is required") {
		t.Errorf("err = %v, want db is required", err)
	}
	db := openOutboxTestDB(t)
	if _, err := NewRelay(RelayOpts{DB: db}); err == nil || !strings.Contains(err.Error(), "handler is required") {
		t.Errorf("err = %v, want handler is required", err)
	}
}

func TestRelay_DrainInOrderAndRecordsErrors(t *testing.T) {
	db := openOutboxTestDB(t)
	Enqueue(db, models.EventSubmissionCreated, 1, nil)
	Enqueue(db, models.EventSubmissionReviewed, 1, nil)
	Enqueue(db, models.EventSubmissionCreated, 2, nil)

	var seen []string
	relay, err := NewRelay(RelayOpts{
		DB:        db,
		BatchSize: 2,
		Out:       &bytes.Buffer{},
		Handler: func(ctx context.Context, evt models.OutboxEvent) error {
			seen = append(seen, evt.Kind)
			if evt.SubmissionID == 2 {
				return errors.New("chat down")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := relay.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if n != 3 {
		t.Errorf("handled = %d, want 3", n)
	}
	want := []string{models.EventSubmissionCreated, models.EventSubmissionReviewed, models.EventSubmissionCreated}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Errorf("order = %v, want %v", seen, want)
	}

	var failed models.OutboxEvent
	db.Where("submission_id = ?", 2).First(&failed)
	if failed.LastError != "chat down" {
		t.Errorf("LastError = %q, want chat down", failed.LastError)
	}
	if failed.DispatchedAt == nil {
		t.Error("failed event should stay claimed (no retry)")
	}

	n, _ = relay.Drain(context.Background())
	if n != 0 {
		t.Errorf("second Drain handled = %d, want 0", n)
	}
}

func TestRelay_RunWakesOnNotify(t *testing.T) {
	db := openOutboxTestDB(t)
	got := make(chan uint, 1)
	relay, _ := NewRelay(RelayOpts{
		DB:           db,
		PollInterval: time.Hour,
		Out:          &bytes.Buffer{},
		Handler: func(ctx context.Context, evt models.OutboxEvent) error {
			got <- evt.SubmissionID
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	// Give Run time to finish its initial drain and block.
	time.Sleep(50 * time.Millisecond)
	Enqueue(db, models.EventSubmissionCreated, 42, nil)
	relay.Notify()
	relay.Notify() // coalesced, must not block

	select {
	case id := <-got:
		if id != 42 {
			t.Errorf("submission = %d, want 42", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not wake up")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
