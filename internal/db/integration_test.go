//go:build integration

package db

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JekaCAP/homework-assistant-bot/internal/config"
	"github.com/JekaCAP/homework-assistant-bot/internal/models"
)

// mysqlConfig reads the test server from HWBOT_TEST_MYSQL_* and creates a
// throwaway database that is dropped when the test completes.
func mysqlConfig(t *testing.T) config.DatabaseConfig {
	t.Helper()
	host := os.Getenv("HWBOT_TEST_MYSQL_HOST")
	if host == "" {
		t.Skip("HWBOT_TEST_MYSQL_HOST not set")
	}
	port := 3306
	if p := os.Getenv("HWBOT_TEST_MYSQL_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			t.Fatalf("HWBOT_TEST_MYSQL_PORT: %v", err)
		}
		port = n
	}
	user := os.Getenv("HWBOT_TEST_MYSQL_USER")
	if user == "" {
		user = "root"
	}
	cfg := config.DatabaseConfig{
		Driver:   "mysql",
		Host:     host,
		Port:     port,
		User:     user,
		Password: os.Getenv("HWBOT_TEST_MYSQL_PASSWORD"),
		Name:     "hwbot_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""),
	}

	adminDB, err := ConnectAdmin(cfg)
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if err := CreateDatabase(adminDB, cfg.Name); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	t.Cleanup(func() {
		if err := DropDatabase(adminDB, cfg.Name); err != nil {
			t.Errorf("DropDatabase: %v", err)
		}
	})
	return cfg
}

func TestIntegration_ConnectAndMigrate(t *testing.T) {
	cfg := mysqlConfig(t)
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}
	// Second run is a no-op.
	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate again: %v", err)
	}
}

func TestIntegration_SeedIsIdempotent(t *testing.T) {
	cfg := mysqlConfig(t)
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}

	courses := []config.CourseConfig{{
		Code: "go", Name: "Go",
		Assignments: []config.AssignmentConfig{{Number: 1, Title: "Hello", MaxScore: 100}},
	}}
	admins := []config.AdminConfig{{UserID: "U-ADMIN", Name: "Reviewer"}}
	for range 2 {
		if err := SeedCourses(gdb, courses); err != nil {
			t.Fatalf("SeedCourses: %v", err)
		}
		if err := SeedAdmins(gdb, admins); err != nil {
			t.Fatalf("SeedAdmins: %v", err)
		}
	}

	var nCourses, nAssignments, nAdmins int64
	gdb.Model(&models.Course{}).Count(&nCourses)
	gdb.Model(&models.Assignment{}).Count(&nAssignments)
	gdb.Model(&models.Admin{}).Count(&nAdmins)
	if nCourses != 1 || nAssignments != 1 || nAdmins != 1 {
		t.Errorf("courses=%d assignments=%d admins=%d, want 1 each", nCourses, nAssignments, nAdmins)
	}
}

func TestIntegration_DuplicateKey(t *testing.T) {
	cfg := mysqlConfig(t)
	gdb, err := Connect(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := AutoMigrate(gdb); err != nil {
		t.Fatal(err)
	}
	if err := gdb.Create(&models.Student{ChatUserID: "U1"}).Error; err != nil {
		t.Fatal(err)
	}
	err = gdb.Create(&models.Student{ChatUserID: "U1"}).Error
	if !IsDuplicateKey(err) {
		t.Errorf("IsDuplicateKey(%v) = false", err)
	}
	if IsDuplicateKey(errors.New("boom")) {
		t.Error("plain error reported as duplicate")
	}
}
