/*
Package mesos connects the scheduler to a Mesos master through the v1 HTTP
scheduler API, using the mesos-go v1 library.

# Subscription

Run hands the framework to the mesos-go scheduler controller, which holds
one SUBSCRIBE call open against the master and decodes its RecordIO event
stream. The controller resubscribes after the stream drops, spacing attempts
with an exponential backoff from one second up to Config.ReconnectDelay.
The framework id from the first SUBSCRIBED event is kept in an in-memory
store and sent on every later SUBSCRIBE, so tasks already running survive a
reconnect.

	client := mesos.NewClient(mesos.Config{
		Master:        "http://127.0.0.1:5050",
		FrameworkName: "elb+apache",
		User:          "root",
		Command:       "./startapache.sh",
	})
	sched := scheduler.NewScheduler(scheduler.Options{Driver: client, ...})
	go client.Run(ctx, sched)

# Events

Events are routed with mesos-go event rules:

	SUBSCRIBED  framework id stored, subscription marked healthy
	OFFERS      converted to a types.OfferBatch for Handler.ResourceOffers
	UPDATE      converted to a types.StatusUpdate for Handler.StatusUpdate,
	            then acknowledged
	RESCIND     logged
	FAILURE     logged
	ERROR       ends the subscription
	HEARTBEAT   ignored

Status updates are acknowledged after the handler returns, including
updates whose state has no lifecycle meaning here (TASK_KILLING,
TASK_UNREACHABLE) and updates for task ids this scheduler did not assign.
MapState documents the state mapping.

# Calls

ReplyToOffers, KillTask and acknowledgements go through a caller that
stamps the current framework id on each call. Calls made while no
subscription is active fail with ErrNotSubscribed without reaching the
master. Every call that does reach it is counted in
elbscaler_driver_calls_total{call,result}.

ReplyToOffers sends one ACCEPT per accepted offer, each with a single
LAUNCH operation, followed by one DECLINE for every other offer in the
batch. Both carry a refuse filter of Config.RefuseSeconds. A failed ACCEPT
does not stop the rest of the batch; the failed task ids come back in a
*types.LaunchError so the scheduler can drop exactly those launches.
*/
package mesos
