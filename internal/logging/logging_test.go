package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewAppliesLevelAndFormatter(t *testing.T) {
	log, err := New(Options{Level: "debug", JSON: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", log.Logger.GetLevel())
	}
	if _, ok := log.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected JSONFormatter, got %T", log.Logger.Formatter)
	}
}

func TestNewFallsBackToInfoOnBadLevel(t *testing.T) {
	log, err := New(Options{Level: "not-a-level"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", log.Logger.GetLevel())
	}
}

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noded.log")
	log, err := New(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected log file to contain the logged line")
	}
}
