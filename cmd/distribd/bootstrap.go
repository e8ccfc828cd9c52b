package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Lay out a new node's data directory and write a starter config",
	Long: `bootstrap creates the images directory layout a node expects
(blobs, manifests, uploads) and writes a starter YAML config file. It
does not start the node or contact any peers. Edit the resulting config
(add peers, fill in credentials) and pass it to "distribd serve -c <file>".`,
	RunE: runBootstrap,
}

func init() {
	bootstrapCmd.Flags().String("node-id", "node-1", "unique node ID")
	bootstrapCmd.Flags().String("images-directory", "./data", "directory for the log, snapshot cache, and blob/manifest storage")
	bootstrapCmd.Flags().String("raft-addr", "127.0.0.1:7050", "host:port for consensus; only the port is written to the config, and peers reach this node at registry-addr on that port")
	bootstrapCmd.Flags().String("registry-addr", "0.0.0.0", "address the registry HTTP frontend binds")
	bootstrapCmd.Flags().Int("registry-port", 5000, "port the registry HTTP frontend binds")
	bootstrapCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "address:port the metrics/health HTTP server binds")
	bootstrapCmd.Flags().StringP("out", "o", "distribd.yaml", "path to write the generated config")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetString("node-id")
	imagesDir, _ := cmd.Flags().GetString("images-directory")
	raftAddr, _ := cmd.Flags().GetString("raft-addr")
	registryAddr, _ := cmd.Flags().GetString("registry-addr")
	registryPort, _ := cmd.Flags().GetInt("registry-port")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	outPath, _ := cmd.Flags().GetString("out")

	_, port, err := splitHostPort(raftAddr)
	if err != nil {
		return fmt.Errorf("parse raft-addr: %w", err)
	}

	fmt.Println("Bootstrapping distribd node...")
	fmt.Printf("  Node ID:          %s\n", nodeID)
	fmt.Printf("  Images directory: %s\n", imagesDir)
	fmt.Printf("  Raft address:     %s\n", raftAddr)
	fmt.Println()

	for _, sub := range []string{"blobs", "manifests", "uploads"} {
		dir := filepath.Join(imagesDir, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		fmt.Printf("✓ %s\n", dir)
	}

	cfg := Config{}
	cfg.Node.ID = nodeID
	cfg.Node.ImagesDirectory = imagesDir
	cfg.Registry.Address = registryAddr
	cfg.Registry.Port = registryPort
	cfg.Raft.Port = port
	cfg.Metrics.Address = metricsAddr
	cfg.Logging.Level = "info"

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("✓ wrote %s\n", outPath)
	fmt.Println()
	fmt.Println("Add this node's peers and mirroring credentials, then run:")
	fmt.Printf("  distribd serve -c %s\n", outPath)
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
