package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"

	"ledgerd/internal/testutil"
)

func TestLoadAppliesDefaults(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if _, err := Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if AppConfig.Network.MaxPeers != 25 {
		t.Fatalf("expected default MaxPeers 25, got %d", AppConfig.Network.MaxPeers)
	}
	if AppConfig.BlockLog.PruneThreshold != 1024 {
		t.Fatalf("expected default PruneThreshold 1024, got %d", AppConfig.BlockLog.PruneThreshold)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	data := []byte("network:\n  max_peers: 99\nblock_log:\n  prune_blocks: 500\n")
	if err := sb.WriteFile("config/default.yaml", data, 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if _, err := Load(""); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if AppConfig.Network.MaxPeers != 99 {
		t.Fatalf("expected MaxPeers 99, got %d", AppConfig.Network.MaxPeers)
	}
	if AppConfig.BlockLog.PruneBlocks != 500 {
		t.Fatalf("expected PruneBlocks 500, got %d", AppConfig.BlockLog.PruneBlocks)
	}
}

func TestLoadFromEnvUsesOverrideName(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	if err := os.Mkdir(sb.Path("config"), 0700); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := sb.WriteFile("config/default.yaml", []byte("network:\n  max_peers: 10\n"), 0600); err != nil {
		t.Fatalf("WriteFile default: %v", err)
	}
	if err := sb.WriteFile("config/staging.yaml", []byte("network:\n  max_peers: 77\n"), 0600); err != nil {
		t.Fatalf("WriteFile staging: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	defer os.Chdir(wd)
	viper.Reset()
	os.Setenv("LEDGERD_ENV", "staging")
	defer os.Unsetenv("LEDGERD_ENV")

	if err := os.Chdir(sb.Root); err != nil {
		t.Fatalf("Chdir: %v", err)
	}

	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if AppConfig.Network.MaxPeers != 77 {
		t.Fatalf("expected MaxPeers 77 from staging override, got %d", AppConfig.Network.MaxPeers)
	}
}
