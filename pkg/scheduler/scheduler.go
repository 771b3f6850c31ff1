package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/elbscaler/pkg/events"
	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/membership"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/traffic"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/rs/zerolog"
)

// Driver sends decisions back to the cluster manager
type Driver interface {
	// ReplyToOffers launches the accepted tasks and declines every other
	// offer in the batch
	ReplyToOffers(ctx context.Context, batch *types.OfferBatch, accepted []*types.LaunchRequest) error

	// KillTask asks the cluster manager to terminate a task
	KillTask(ctx context.Context, taskID int, agentID string) error
}

// Config holds the control loop timing
type Config struct {
	// Interval between control loop cycles
	Interval time.Duration

	// Window is how far back each metrics query looks
	Window time.Duration
}

// Scheduler wires the registry to the driver, the load balancer and the
// metrics source. Offer and status callbacks and the control loop run on
// separate goroutines and share nothing but the registry.
type Scheduler struct {
	registry *Registry

	// membersMu is held from a status or rescale decision until its
	// membership calls return, so the load balancer sees them in decision order
	membersMu sync.Mutex

	driver   Driver
	members  membership.Synchronizer
	source   traffic.Source
	broker   *events.Broker
	health   *metrics.HealthChecker
	cfg      Config
	logger   zerolog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Options are the collaborators of a Scheduler. Broker and Health are optional.
type Options struct {
	Registry   *Registry
	Driver     Driver
	Membership membership.Synchronizer
	Source     traffic.Source
	Broker     *events.Broker
	Health     *metrics.HealthChecker
	Config     Config
}

// NewScheduler creates a scheduler
func NewScheduler(opts Options) *Scheduler {
	if opts.Config.Interval <= 0 {
		opts.Config.Interval = 10 * time.Second
	}
	if opts.Config.Window <= 0 {
		opts.Config.Window = 2 * time.Minute
	}
	return &Scheduler{
		registry: opts.Registry,
		driver:   opts.Driver,
		members:  opts.Membership,
		source:   opts.Source,
		broker:   opts.Broker,
		health:   opts.Health,
		cfg:      opts.Config,
		logger:   log.WithComponent("scheduler"),
		stopCh:   make(chan struct{}),
	}
}

// Registry returns the scheduler state
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Snapshot implements metrics.Snapshotter
func (s *Scheduler) Snapshot() types.Snapshot {
	return s.registry.Snapshot()
}

// ResourceOffers handles one batch of offers from the cluster manager
func (s *Scheduler) ResourceOffers(ctx context.Context, batch *types.OfferBatch) {
	s.logger.Debug().Str("batch_id", batch.ID).Int("offers", len(batch.Offers)).Msg("Received resource offers")

	_, effects := s.registry.HandleOffers(batch)
	s.execute(ctx, effects)
}

// StatusUpdate handles one task status notification
func (s *Scheduler) StatusUpdate(ctx context.Context, update types.StatusUpdate) {
	var result StatusResult
	rest := s.decide(ctx, func() []Effect {
		var effects []Effect
		result, effects = s.registry.HandleStatus(update)
		return effects
	})
	s.execute(ctx, rest)

	if !result.Known {
		return
	}
	switch {
	case result.Removed:
		s.publish(events.EventTaskTerminated, result.Task, "task %d on %s %s", result.Task.ID, result.Task.Host, update.State)
	case update.State == types.TaskStateRunning:
		s.publish(events.EventTaskRunning, result.Task, "task %d running on %s", result.Task.ID, result.Task.Host)
	}
}

// Start begins the control loop
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the control loop and waits for the current cycle to finish
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// run is the control loop
func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stopCh
		cancel()
	}()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				// Log error but continue
				s.logger.Error().Err(err).Msg("Control loop cycle failed, desired count unchanged")
			}
		case <-s.stopCh:
			return
		}
	}
}

// Tick runs one control loop cycle: query traffic, recompute the desired
// count, and kill the excess. A query failure leaves the registry untouched.
func (s *Scheduler) Tick(ctx context.Context) (types.ScaleDecision, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ControlLoopDuration)

	end := time.Now()
	samples, err := s.source.Query(ctx, end.Add(-s.cfg.Window), end)
	if err != nil {
		metrics.ControlLoopCyclesTotal.WithLabelValues("error").Inc()
		if s.health != nil {
			s.health.SetComponent(metrics.ComponentCloudWatch, false, err.Error())
		}
		return types.ScaleDecision{}, fmt.Errorf("failed to query request count: %w", err)
	}
	if s.health != nil {
		s.health.SetComponent(metrics.ComponentCloudWatch, true, "")
	}

	var decision types.ScaleDecision
	kills := s.decide(ctx, func() []Effect {
		var effects []Effect
		decision, effects = s.registry.Rescale(samples)
		return effects
	})
	s.execute(ctx, kills)

	metrics.ControlLoopCyclesTotal.WithLabelValues("success").Inc()
	metrics.DesiredReplicas.Set(float64(decision.Desired))
	metrics.RequestCount.Set(decision.RequestSum)

	s.logger.Debug().
		Int("samples", decision.Samples).
		Float64("request_sum", decision.RequestSum).
		Int("desired", decision.Desired).
		Int("counted", decision.Counted).
		Ints("victims", decision.Victims).
		Msg("Control loop cycle complete")
	s.publish(events.EventScaleDecided, decision, "desired %d, counted %d, killing %d", decision.Desired, decision.Counted, len(decision.Victims))

	return decision, nil
}

// decide runs a registry operation under membersMu and performs its
// membership effects before releasing it. The other effects are returned
// in order for the caller to execute.
func (s *Scheduler) decide(ctx context.Context, op func() []Effect) []Effect {
	s.membersMu.Lock()
	defer s.membersMu.Unlock()

	var rest []Effect
	for _, effect := range op() {
		switch effect.Kind {
		case EffectRegister, EffectDeregister:
			s.apply(ctx, effect)
		default:
			rest = append(rest, effect)
		}
	}
	return rest
}

// execute performs effects in order, outside the registry lock
func (s *Scheduler) execute(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		s.apply(ctx, effect)
	}
}

func (s *Scheduler) apply(ctx context.Context, effect Effect) {
	switch effect.Kind {
	case EffectReplyToOffers:
		s.replyToOffers(ctx, effect)
	case EffectKill:
		s.killTask(ctx, effect)
	case EffectRegister:
		s.members.Register(ctx, effect.BackendIDs)
		s.publish(events.EventBackendRegistered, effect.BackendIDs, "registered %s", strings.Join(effect.BackendIDs, ","))
	case EffectDeregister:
		s.members.Deregister(ctx, effect.BackendIDs)
		s.publish(events.EventBackendRemoved, effect.BackendIDs, "deregistered %s", strings.Join(effect.BackendIDs, ","))
	}
}

func (s *Scheduler) replyToOffers(ctx context.Context, effect Effect) {
	var failed []int
	if err := s.driver.ReplyToOffers(ctx, effect.Batch, effect.Accepted); err != nil {
		// No status will ever arrive for launches the cluster manager never
		// received, so their records would hold the hosts forever
		var launchErr *types.LaunchError
		if errors.As(err, &launchErr) {
			failed = launchErr.TaskIDs
		} else {
			for _, launch := range effect.Accepted {
				failed = append(failed, launch.TaskID)
			}
		}
		dropped := s.registry.AbandonLaunches(failed)
		s.logger.Error().Err(err).Str("batch_id", effect.Batch.ID).Ints("dropped", dropped).Msg("Failed to reply to offers")
		if launchErr == nil {
			return
		}
	}
	skip := make(map[int]bool, len(failed))
	for _, id := range failed {
		skip[id] = true
	}
	for _, launch := range effect.Accepted {
		if skip[launch.TaskID] {
			continue
		}
		metrics.TasksLaunched.Inc()
		s.publish(events.EventTaskLaunched, launch, "task %d launched on %s", launch.TaskID, launch.Host)
	}
}

func (s *Scheduler) killTask(ctx context.Context, effect Effect) {
	metrics.KillRequestsTotal.Inc()
	if err := s.driver.KillTask(ctx, effect.TaskID, effect.AgentID); err != nil {
		// The task stays pending kill until a terminal status arrives
		s.logger.Error().Err(err).Int("task_id", effect.TaskID).Msg("Failed to request task kill")
		return
	}
	s.publish(events.EventTaskKillRequested, effect.TaskID, "kill requested for task %d", effect.TaskID)
}

func (s *Scheduler) publish(typ events.EventType, payload interface{}, format string, args ...interface{}) {
	if s.broker == nil {
		return
	}
	meta := map[string]string{}
	switch p := payload.(type) {
	case types.Task:
		meta["task_id"] = strconv.Itoa(p.ID)
		meta["host"] = p.Host
	case *types.LaunchRequest:
		meta["task_id"] = strconv.Itoa(p.TaskID)
		meta["host"] = p.Host
	case int:
		meta["task_id"] = strconv.Itoa(p)
	}
	s.broker.Publish(&events.Event{
		Type:     typ,
		Message:  fmt.Sprintf(format, args...),
		Metadata: meta,
		Payload:  payload,
	})
}
