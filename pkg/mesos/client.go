package mesos

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/elbscaler/pkg/log"
	"github.com/cuemby/elbscaler/pkg/metrics"
	"github.com/cuemby/elbscaler/pkg/types"
	"github.com/google/uuid"
	mesos "github.com/mesos/mesos-go/api/v1/lib"
	"github.com/mesos/mesos-go/api/v1/lib/backoff"
	"github.com/mesos/mesos-go/api/v1/lib/encoding/codecs"
	"github.com/mesos/mesos-go/api/v1/lib/extras/scheduler/callrules"
	"github.com/mesos/mesos-go/api/v1/lib/extras/scheduler/controller"
	"github.com/mesos/mesos-go/api/v1/lib/extras/scheduler/eventrules"
	"github.com/mesos/mesos-go/api/v1/lib/extras/store"
	"github.com/mesos/mesos-go/api/v1/lib/httpcli"
	"github.com/mesos/mesos-go/api/v1/lib/httpcli/httpsched"
	"github.com/mesos/mesos-go/api/v1/lib/resources"
	"github.com/mesos/mesos-go/api/v1/lib/scheduler"
	"github.com/mesos/mesos-go/api/v1/lib/scheduler/calls"
	"github.com/mesos/mesos-go/api/v1/lib/scheduler/events"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
)

// ErrNotSubscribed is returned by calls made while no subscription is active
var ErrNotSubscribed = errors.New("not subscribed to mesos master")

const (
	schedulerPath = "/api/v1/scheduler"

	minRegistrationBackoff = time.Second
	connectTimeout         = 10 * time.Second
	callTimeout            = 10 * time.Second
)

// Handler receives the decoded events of the subscription stream.
// Callbacks run on the stream goroutine, one at a time.
type Handler interface {
	ResourceOffers(ctx context.Context, batch *types.OfferBatch)
	StatusUpdate(ctx context.Context, update types.StatusUpdate)
}

// Config holds the framework registration and reply settings
type Config struct {
	Master        string
	FrameworkName string
	User          string
	Role          string
	RefuseSeconds float64

	// ReconnectDelay caps the backoff between subscription attempts
	ReconnectDelay time.Duration

	// Command every launched task runs
	Command string

	// Caller replaces the HTTP caller built from Master
	Caller calls.Caller

	Health *metrics.HealthChecker

	// OnSubscription is called whenever the subscription is gained or lost
	OnSubscription func(subscribed bool)
}

// Client is a Mesos v1 HTTP scheduler. It implements scheduler.Driver.
type Client struct {
	cfg    Config
	logger zerolog.Logger

	// transport subscribes; caller stamps the framework id on every other call
	transport calls.Caller
	caller    calls.Caller
	fidStore  store.Singleton

	mu         sync.RWMutex
	subscribed bool
}

// NewClient creates a client for the master at cfg.Master
func NewClient(cfg Config) *Client {
	if cfg.ReconnectDelay < minRegistrationBackoff {
		cfg.ReconnectDelay = 15 * time.Second
	}

	c := &Client{
		cfg:      cfg,
		logger:   log.WithComponent("mesos"),
		fidStore: store.NewInMemorySingleton(),
	}

	base := cfg.Caller
	if base == nil {
		base = httpsched.NewCaller(httpcli.New(
			httpcli.Endpoint(Endpoint(cfg.Master)),
			httpcli.Codec(codecs.ByMediaType[codecs.MediaTypeProtobuf]),
			httpcli.Do(httpcli.With(httpcli.Timeout(connectTimeout))),
		))
	}
	c.transport = meteredCaller{base}
	c.caller = callrules.WithFrameworkID(store.GetIgnoreErrors(c.fidStore)).Caller(c.transport)
	return c
}

// Endpoint returns the scheduler API URL of a master address. A bare
// host:port is taken as plain HTTP.
func Endpoint(master string) string {
	master = strings.TrimRight(master, "/")
	if !strings.Contains(master, "://") {
		master = "http://" + master
	}
	return master + schedulerPath
}

// FrameworkID returns the id assigned by the master, empty before the first subscription
func (c *Client) FrameworkID() string {
	return store.GetIgnoreErrors(c.fidStore)()
}

// Subscribed reports whether a subscription stream is active
func (c *Client) Subscribed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribed
}

// Run subscribes and dispatches events to handler until ctx is cancelled.
// Lost subscriptions are retried with backoff up to ReconnectDelay, reusing
// the framework id so running tasks are kept.
func (c *Client) Run(ctx context.Context, handler Handler) {
	err := controller.Run(
		ctx,
		c.frameworkInfo(),
		c.transport,
		controller.WithEventHandler(c.eventHandler(handler)),
		controller.WithFrameworkID(store.GetIgnoreErrors(c.fidStore)),
		controller.WithRegistrationTokens(
			backoff.Notifier(minRegistrationBackoff, c.cfg.ReconnectDelay, ctx.Done()),
		),
		controller.WithSubscriptionTerminated(c.subscriptionTerminated),
	)
	if err != nil && ctx.Err() == nil {
		c.logger.Error().Err(err).Msg("Scheduler controller stopped")
	}
}

func (c *Client) frameworkInfo() *mesos.FrameworkInfo {
	info := &mesos.FrameworkInfo{
		User: c.cfg.User,
		Name: c.cfg.FrameworkName,
	}
	if c.cfg.Role != "" {
		info.Role = proto.String(c.cfg.Role)
	}
	return info
}

// eventHandler routes subscription events. Status updates are acknowledged
// after the handler returns, including updates whose state is ignored.
func (c *Client) eventHandler(handler Handler) events.Handler {
	return eventrules.New(
		controller.LiftErrors().DropOnError(),
	).Handle(events.Handlers{
		scheduler.Event_SUBSCRIBED: eventrules.New(
			controller.TrackSubscription(c.fidStore, 0),
			eventrules.HandleF(c.subscribedEvent),
		),
		scheduler.Event_OFFERS: events.HandlerFunc(c.offersEvent(handler)),
		scheduler.Event_UPDATE: eventrules.New(
			eventrules.HandleF(c.updateEvent(handler)),
			controller.AckStatusUpdates(c.caller).AndThen(),
		),
		scheduler.Event_RESCIND: events.HandlerFunc(c.rescindEvent),
		scheduler.Event_FAILURE: events.HandlerFunc(c.failureEvent),
	}.Otherwise(c.otherEvent))
}

func (c *Client) subscribedEvent(_ context.Context, e *scheduler.Event) error {
	sub := e.GetSubscribed()
	c.setSubscribed(true, nil)
	c.logger.Info().
		Str("framework_id", sub.GetFrameworkID().Value).
		Float64("heartbeat_seconds", sub.GetHeartbeatIntervalSeconds()).
		Msg("Subscribed to master")
	return nil
}

func (c *Client) subscriptionTerminated(err error) {
	c.setSubscribed(false, err)
	if err != nil {
		c.logger.Error().Err(err).Msg("Subscription to master lost")
		return
	}
	c.logger.Info().Msg("Disconnected from master")
}

func (c *Client) offersEvent(handler Handler) events.HandlerFunc {
	return func(ctx context.Context, e *scheduler.Event) error {
		handler.ResourceOffers(ctx, toBatch(e.GetOffers().GetOffers()))
		return nil
	}
}

func (c *Client) updateEvent(handler Handler) events.HandlerFunc {
	return func(ctx context.Context, e *scheduler.Event) error {
		s := e.GetUpdate().GetStatus()
		update, ok := toStatusUpdate(s.TaskID.Value, s.GetState(), s.GetAgentID().GetValue(), s.GetMessage())
		if !ok {
			c.logger.Info().
				Str("task_id", s.TaskID.Value).
				Str("state", s.GetState().String()).
				Msg("Ignoring status update")
			return nil
		}
		handler.StatusUpdate(ctx, update)
		return nil
	}
}

func (c *Client) rescindEvent(_ context.Context, e *scheduler.Event) error {
	c.logger.Debug().Str("offer_id", e.GetRescind().OfferID.Value).Msg("Offer rescinded")
	return nil
}

func (c *Client) failureEvent(_ context.Context, e *scheduler.Event) error {
	f := e.GetFailure()
	c.logger.Info().
		Str("agent_id", f.GetAgentID().GetValue()).
		Str("executor_id", f.GetExecutorID().GetValue()).
		Msg("Failure reported by master")
	return nil
}

func (c *Client) otherEvent(_ context.Context, e *scheduler.Event) error {
	if e.GetType() != scheduler.Event_HEARTBEAT {
		c.logger.Debug().Str("type", e.GetType().String()).Msg("Ignoring event")
	}
	return nil
}

// ReplyToOffers sends one ACCEPT with a LAUNCH operation per accepted offer
// and a single DECLINE for the rest of the batch. Launches whose ACCEPT
// failed are reported in a *types.LaunchError.
func (c *Client) ReplyToOffers(ctx context.Context, batch *types.OfferBatch, accepted []*types.LaunchRequest) error {
	refuse := calls.RefuseSeconds(time.Duration(c.cfg.RefuseSeconds * float64(time.Second)))

	used := make(map[string]bool, len(accepted))
	var failed []int
	var firstErr error
	for _, launch := range accepted {
		used[launch.OfferID] = true
		accept := calls.Accept(
			calls.OfferOperations{calls.OpLaunch(c.taskInfo(launch))}.WithOffers(mesos.OfferID{Value: launch.OfferID}),
		).With(refuse)

		if err := c.call(ctx, accept); err != nil {
			failed = append(failed, launch.TaskID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	var declined []mesos.OfferID
	for _, offer := range batch.Offers {
		if !used[offer.ID] {
			declined = append(declined, mesos.OfferID{Value: offer.ID})
		}
	}
	if len(declined) > 0 {
		if err := c.call(ctx, calls.Decline(declined...).With(refuse)); err != nil {
			// Undeclined offers return to the pool when the master times them out
			c.logger.Warn().Err(err).Int("offers", len(declined)).Msg("Failed to decline offers")
		}
	}

	if len(failed) > 0 {
		return &types.LaunchError{TaskIDs: failed, Err: firstErr}
	}
	return nil
}

// KillTask asks the master to kill a task
func (c *Client) KillTask(ctx context.Context, taskID int, agentID string) error {
	return c.call(ctx, calls.Kill(strconv.Itoa(taskID), agentID))
}

func (c *Client) taskInfo(launch *types.LaunchRequest) mesos.TaskInfo {
	info := mesos.TaskInfo{
		Name:    launch.Name,
		TaskID:  mesos.TaskID{Value: strconv.Itoa(launch.TaskID)},
		AgentID: mesos.AgentID{Value: launch.AgentID},
		Resources: mesos.Resources{
			resources.NewCPUs(launch.Resources.CPUs).Resource,
			resources.NewMemory(launch.Resources.MemMB).Resource,
		},
		Data: launch.Payload,
	}
	if c.cfg.Command != "" {
		info.Command = &mesos.CommandInfo{
			Value: proto.String(c.cfg.Command),
			Shell: proto.Bool(true),
		}
	}
	return info
}

// call sends a non-subscribe call on the current subscription
func (c *Client) call(ctx context.Context, call *scheduler.Call) error {
	if !c.Subscribed() {
		recordCall(call.GetType(), "error")
		return ErrNotSubscribed
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if err := calls.CallNoData(ctx, c.caller, call); err != nil {
		return fmt.Errorf("%s call failed: %w", call.GetType(), err)
	}
	return nil
}

func (c *Client) setSubscribed(subscribed bool, cause error) {
	c.mu.Lock()
	changed := c.subscribed != subscribed
	c.subscribed = subscribed
	c.mu.Unlock()

	if c.cfg.Health != nil {
		msg := "subscribed"
		if !subscribed {
			msg = "not subscribed"
			if cause != nil {
				msg = cause.Error()
			}
		}
		c.cfg.Health.SetComponent(metrics.ComponentMesos, subscribed, msg)
	}
	if changed && c.cfg.OnSubscription != nil {
		c.cfg.OnSubscription(subscribed)
	}
}

// meteredCaller counts every call that reaches the master by type and result
type meteredCaller struct {
	calls.Caller
}

func (m meteredCaller) Call(ctx context.Context, call *scheduler.Call) (mesos.Response, error) {
	resp, err := m.Caller.Call(ctx, call)
	result := "success"
	if err != nil {
		result = "error"
	}
	recordCall(call.GetType(), result)
	return resp, err
}

func toBatch(offers []mesos.Offer) *types.OfferBatch {
	batch := &types.OfferBatch{
		ID:     uuid.New().String(),
		Offers: make([]*types.Offer, 0, len(offers)),
	}
	for i := range offers {
		o := &offers[i]
		offer := &types.Offer{
			ID:      o.ID.Value,
			AgentID: o.AgentID.Value,
			Host:    o.Hostname,
		}
		for j := range o.Resources {
			r := &o.Resources[j]
			switch r.GetName() {
			case "cpus":
				offer.CPUs += r.GetScalar().GetValue()
			case "mem":
				offer.MemMB += r.GetScalar().GetValue()
			}
		}
		batch.Offers = append(batch.Offers, offer)
	}
	return batch
}

func toStatusUpdate(taskID string, state mesos.TaskState, agentID, message string) (types.StatusUpdate, bool) {
	id, err := strconv.Atoi(taskID)
	if err != nil {
		return types.StatusUpdate{}, false
	}
	mapped, ok := MapState(state)
	if !ok {
		return types.StatusUpdate{}, false
	}
	return types.StatusUpdate{
		TaskID:  id,
		State:   mapped,
		AgentID: agentID,
		Message: message,
	}, true
}

// MapState converts a Mesos task state to the scheduler's lifecycle state.
// States with no lifecycle meaning here, such as TASK_KILLING, report false.
func MapState(state mesos.TaskState) (types.TaskState, bool) {
	switch state {
	case mesos.TASK_STAGING, mesos.TASK_STARTING:
		return types.TaskStateStarting, true
	case mesos.TASK_RUNNING:
		return types.TaskStateRunning, true
	case mesos.TASK_FINISHED:
		return types.TaskStateFinished, true
	case mesos.TASK_FAILED:
		return types.TaskStateFailed, true
	case mesos.TASK_KILLED:
		return types.TaskStateKilled, true
	case mesos.TASK_LOST, mesos.TASK_ERROR, mesos.TASK_DROPPED, mesos.TASK_GONE, mesos.TASK_GONE_BY_OPERATOR:
		return types.TaskStateLost, true
	default:
		return "", false
	}
}

func recordCall(call scheduler.Call_Type, result string) {
	metrics.DriverCallsTotal.WithLabelValues(strings.ToLower(call.String()), result).Inc()
}
