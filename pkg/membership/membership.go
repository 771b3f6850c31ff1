// Package membership keeps an AWS Classic Load Balancer registered with
// the instances that run live backends, and maps Mesos agent hostnames to
// EC2 instance ids.
package membership

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	elb "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancing/types"
	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/rs/zerolog"
)

// Synchronizer adds and removes backends from an external load balancer.
// Calls are fire-and-forget: failures are logged by the implementation and
// never returned to the caller.
type Synchronizer interface {
	Register(ctx context.Context, backendIDs []string)
	Deregister(ctx context.Context, backendIDs []string)
}

// ELBAPI is the subset of the Classic ELB client used here
type ELBAPI interface {
	RegisterInstancesWithLoadBalancer(ctx context.Context, params *elb.RegisterInstancesWithLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.RegisterInstancesWithLoadBalancerOutput, error)
	DeregisterInstancesFromLoadBalancer(ctx context.Context, params *elb.DeregisterInstancesFromLoadBalancerInput, optFns ...func(*elb.Options)) (*elb.DeregisterInstancesFromLoadBalancerOutput, error)
}

// ELBSynchronizer manages instance membership of a Classic Load Balancer
type ELBSynchronizer struct {
	client  ELBAPI
	name    string
	timeout time.Duration
	health  *metrics.HealthChecker
	logger  zerolog.Logger
}

// NewELBSynchronizer creates a synchronizer for the named load balancer.
// health may be nil.
func NewELBSynchronizer(client ELBAPI, loadBalancerName string, health *metrics.HealthChecker) *ELBSynchronizer {
	return &ELBSynchronizer{
		client:  client,
		name:    loadBalancerName,
		timeout: 10 * time.Second,
		health:  health,
		logger:  log.WithComponent("membership").With().Str("load_balancer", loadBalancerName).Logger(),
	}
}

// Register adds instances to the load balancer. Ids that were already
// registered are not an error.
func (s *ELBSynchronizer) Register(ctx context.Context, backendIDs []string) {
	if len(backendIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.RegisterInstancesWithLoadBalancer(ctx, &elb.RegisterInstancesWithLoadBalancerInput{
		LoadBalancerName: aws.String(s.name),
		Instances:        toInstances(backendIDs),
	})
	if err != nil {
		s.fail("register", backendIDs, err)
		return
	}
	s.succeed("register")

	registered := fromInstances(out.Instances)
	if missing := difference(backendIDs, registered); len(missing) > 0 {
		s.logger.Warn().Strs("missing", missing).Msg("Load balancer did not report all registered backends")
	}
	s.logger.Info().
		Strs("backends", backendIDs).
		Strs("all_backends", registered).
		Msg("Registered backends")
}

// Deregister removes instances from the load balancer. Ids that were not
// registered are not an error.
func (s *ELBSynchronizer) Deregister(ctx context.Context, backendIDs []string) {
	if len(backendIDs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.DeregisterInstancesFromLoadBalancer(ctx, &elb.DeregisterInstancesFromLoadBalancerInput{
		LoadBalancerName: aws.String(s.name),
		Instances:        toInstances(backendIDs),
	})
	if err != nil {
		s.fail("deregister", backendIDs, err)
		return
	}
	s.succeed("deregister")

	remaining := fromInstances(out.Instances)
	if still := intersection(backendIDs, remaining); len(still) > 0 {
		s.logger.Warn().Strs("still_registered", still).Msg("Load balancer still reports deregistered backends")
	}
	s.logger.Info().
		Strs("backends", backendIDs).
		Strs("all_backends", remaining).
		Msg("Deregistered backends")
}

func (s *ELBSynchronizer) fail(op string, ids []string, err error) {
	metrics.MembershipOpsTotal.WithLabelValues(op, "error").Inc()
	if s.health != nil {
		s.health.SetComponent(metrics.ComponentELB, false, err.Error())
	}
	s.logger.Error().Err(err).Str("operation", op).Strs("backends", ids).Msg("Load balancer membership call failed")
}

func (s *ELBSynchronizer) succeed(op string) {
	metrics.MembershipOpsTotal.WithLabelValues(op, "success").Inc()
	if s.health != nil {
		s.health.SetComponent(metrics.ComponentELB, true, "")
	}
}

func toInstances(ids []string) []elbtypes.Instance {
	instances := make([]elbtypes.Instance, 0, len(ids))
	for _, id := range ids {
		instances = append(instances, elbtypes.Instance{InstanceId: aws.String(id)})
	}
	return instances
}

func fromInstances(instances []elbtypes.Instance) []string {
	ids := make([]string, 0, len(instances))
	for _, inst := range instances {
		ids = append(ids, aws.ToString(inst.InstanceId))
	}
	sort.Strings(ids)
	return ids
}

func difference(want, have []string) []string {
	set := make(map[string]bool, len(have))
	for _, id := range have {
		set[id] = true
	}
	var out []string
	for _, id := range want {
		if !set[id] {
			out = append(out, id)
		}
	}
	return out
}

func intersection(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, id := range b {
		set[id] = true
	}
	var out []string
	for _, id := range a {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
