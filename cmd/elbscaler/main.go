package main

import (
	"fmt"
	"os"

	"github.com/cuemby/elbscaler/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "elbscaler",
	Short: "elbscaler - Mesos framework that sizes a web farm to its ELB traffic",
	Long: `elbscaler is a Mesos framework scheduler. It launches identical web
backends on offered hosts, registers them with an AWS Classic Load Balancer
once they run, and grows or shrinks the pool every few seconds from the
load balancer's CloudWatch RequestCount.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"elbscaler version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML config file")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	addOverrideFlags(configCmd)
}

// addOverrideFlags registers the flags that override config file values
func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().String("master", "", "Mesos master URL")
	cmd.Flags().String("load-balancer", "", "Classic ELB name")
	cmd.Flags().String("region", "", "AWS region")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().Bool("log-json", false, "Log as JSON")
	cmd.Flags().String("data-dir", "", "Directory for the decision journal")
	cmd.Flags().String("http-addr", "", "Address for health, metrics and state endpoints")
	cmd.Flags().String("grpc-addr", "", "Address for the gRPC health service")
}

// loadConfig reads --config and applies any override flags that were set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("master") {
		cfg.Mesos.Master, _ = flags.GetString("master")
	}
	if flags.Changed("load-balancer") {
		cfg.AWS.LoadBalancerName, _ = flags.GetString("load-balancer")
	}
	if flags.Changed("region") {
		cfg.AWS.Region, _ = flags.GetString("region")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("data-dir") {
		cfg.History.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("http-addr") {
		cfg.API.HTTPAddr, _ = flags.GetString("http-addr")
	}
	if flags.Changed("grpc-addr") {
		cfg.API.GRPCAddr, _ = flags.GetString("grpc-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
