package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	"github.com/cuemby/elbscaler/pkg/api"
	"github.com/cuemby/elbscaler/pkg/config"
	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/history"
	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/membership"
	"github.com/cuemby/elbscaler/pkg/mesos"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/scheduler"
	"github.com/cuemby/elbscaler/pkg/traffic"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register the framework and run the scheduler",
	Long: `Subscribe to the Mesos master as a framework, accept offers for web
backends, keep the load balancer membership in step with running tasks,
and rescale the pool from CloudWatch every autoscale interval.

Instance ids for offered hosts are discovered once at start from EC2
(private DNS name and private IP). aws.host_map entries override them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      log.ParseLevel(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		logger := log.WithComponent("main")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return err
		}

		resolver, err := buildResolver(ctx, ec2.NewFromConfig(awsCfg), cfg.AWS.HostMap)
		if err != nil {
			return err
		}
		logger.Info().Int("hosts", len(resolver)).Msg("Host resolver built")

		health := metrics.NewHealthChecker(Version)
		broker := events.NewBroker()
		broker.Start()
		defer broker.Stop()

		var decisions api.DecisionSource
		store, err := history.Open(cfg.History.DataDir, cfg.History.Retain)
		switch {
		case errors.Is(err, history.ErrDisabled):
			logger.Info().Msg("Decision journal disabled")
		case err != nil:
			return fmt.Errorf("failed to open decision journal: %w", err)
		default:
			defer store.Close()
			recorder := history.NewRecorder(store, broker)
			recorder.Start()
			defer recorder.Stop()
			decisions = store
			logger.Info().Str("data_dir", cfg.History.DataDir).Msg("Decision journal enabled")
		}

		var grpcSrv *api.Server
		onSubscription := func(bool) {}
		if cfg.API.GRPCAddr != "" {
			grpcSrv = api.NewServer()
			onSubscription = grpcSrv.SetServing
		}

		driver := mesos.NewClient(mesos.Config{
			Master:         cfg.Mesos.Master,
			FrameworkName:  cfg.Mesos.FrameworkName,
			User:           cfg.Mesos.User,
			Role:           cfg.Mesos.Role,
			RefuseSeconds:  cfg.Mesos.RefuseSeconds,
			ReconnectDelay: cfg.Mesos.ReconnectDelay,
			Command:        cfg.Task.Command,
			Health:         health,
			OnSubscription: onSubscription,
		})

		sched := scheduler.NewScheduler(scheduler.Options{
			Registry:   scheduler.NewRegistry(policyFromConfig(cfg), resolver),
			Driver:     driver,
			Membership: membership.NewELBSynchronizer(elb.NewFromConfig(awsCfg), cfg.AWS.LoadBalancerName, health),
			Source: traffic.NewCloudWatchSource(cloudwatch.NewFromConfig(awsCfg), traffic.CloudWatchConfig{
				Namespace:        cfg.AWS.MetricNamespace,
				MetricName:       cfg.AWS.MetricName,
				LoadBalancerName: cfg.AWS.LoadBalancerName,
				Period:           cfg.Autoscale.Period,
			}),
			Broker: broker,
			Health: health,
			Config: scheduler.Config{
				Interval: cfg.Autoscale.Interval,
				Window:   cfg.Autoscale.Window,
			},
		})

		collector := metrics.NewCollector(sched, 15*time.Second)
		collector.Start()
		defer collector.Stop()

		errCh := make(chan error, 2)

		var httpSrv *api.HealthServer
		if cfg.API.HTTPAddr != "" {
			httpSrv = api.NewHealthServer(health, sched, decisions)
			go func() {
				if err := httpSrv.Start(cfg.API.HTTPAddr); err != nil {
					errCh <- fmt.Errorf("HTTP server error: %w", err)
				}
			}()
			logger.Info().Str("addr", cfg.API.HTTPAddr).Msg("HTTP endpoints listening")
		}
		if grpcSrv != nil {
			go func() {
				if err := grpcSrv.Start(cfg.API.GRPCAddr); err != nil {
					errCh <- fmt.Errorf("gRPC server error: %w", err)
				}
			}()
		}

		driverDone := make(chan struct{})
		go func() {
			driver.Run(ctx, sched)
			close(driverDone)
		}()
		sched.Start()

		logger.Info().
			Str("master", cfg.Mesos.Master).
			Str("framework", cfg.Mesos.FrameworkName).
			Str("load_balancer", cfg.AWS.LoadBalancerName).
			Msg("Scheduler running")

		// Wait for interrupt signal or server error
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		var runErr error
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		case runErr = <-errCh:
			logger.Error().Err(runErr).Msg("Shutting down")
		}

		// Shutdown
		sched.Stop()
		cancel()
		<-driverDone

		if httpSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
			}
		}
		if grpcSrv != nil {
			grpcSrv.Stop()
		}

		logger.Info().Msg("Shutdown complete")
		return runErr
	},
}

func init() {
	addOverrideFlags(runCmd)
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

// buildResolver snapshots EC2 and layers the configured host map on top.
// Discovery failure is fatal only when there is no host map to fall back on.
func buildResolver(ctx context.Context, client membership.EC2API, hostMap map[string]string) (membership.StaticResolver, error) {
	discovered, err := membership.DiscoverEC2(ctx, client)
	if err != nil {
		if len(hostMap) == 0 {
			return nil, fmt.Errorf("failed to discover instances: %w", err)
		}
		log.Logger.Warn().Err(err).Msg("EC2 discovery failed, using host_map only")
		discovered = membership.StaticResolver{}
	}
	return discovered.Merge(hostMap), nil
}

func policyFromConfig(cfg *config.Config) scheduler.Policy {
	return scheduler.Policy{
		Reservation:      types.Resources{CPUs: cfg.Task.CPUs, MemMB: cfg.Task.MemMB},
		MinCPUs:          cfg.Task.MinCPUs,
		MinMemMB:         cfg.Task.MinMemMB,
		MinReplicas:      cfg.Autoscale.MinReplicas,
		TargetPerBackend: cfg.Autoscale.TargetPerBackend,
	}
}
