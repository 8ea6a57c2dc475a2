package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledgerd/internal/logging"
	"ledgerd/internal/node"
	"ledgerd/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "noded"}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(blockLogCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the node: accept peer connections and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log, err := logging.New(logging.Options{Level: cfg.Logging.Level, File: cfg.Logging.File})
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			n, err := node.New(cfg, log)
			if err != nil {
				return fmt.Errorf("init node: %w", err)
			}
			defer n.Close()
			return n.Serve()
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment-specific config override (e.g. dev, prod)")
	return cmd
}

func blockLogCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "blocklog", Short: "block log maintenance commands"}
	cmd.AddCommand(blockLogRepairCmd())
	cmd.AddCommand(blockLogExtractCmd())
	return cmd
}

func blockLogRepairCmd() *cobra.Command {
	var dir, backupName, timestamp string
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "scan a block log for a corrupt tail and rebuild a clean log/index pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if timestamp == "" {
				return fmt.Errorf("--timestamp is required (used to name the quarantined tail file)")
			}
			last, err := blockLogRepair(dir, backupName, timestamp)
			if err != nil {
				return err
			}
			fmt.Printf("repair complete, last good block: %d\n", last)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/blocks", "block log directory")
	cmd.Flags().StringVar(&backupName, "backup-dir", "backup", "name of the backup directory created under dir")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "timestamp tag used to name the quarantined tail file")
	return cmd
}

func blockLogExtractCmd() *cobra.Command {
	var dir, destDir string
	var from, to uint32
	var swap bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "write a standalone rebased log/index pair for a block range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return blockLogExtract(dir, from, to, destDir, swap)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/blocks", "source block log directory")
	cmd.Flags().StringVar(&destDir, "dest", "", "destination directory for the extracted range")
	cmd.Flags().Uint32Var(&from, "from", 1, "first block number to extract")
	cmd.Flags().Uint32Var(&to, "to", 0, "last block number to extract")
	cmd.Flags().BoolVar(&swap, "swap", false, "replace the live log with the extracted range")
	cmd.MarkFlagRequired("dest")
	return cmd
}
