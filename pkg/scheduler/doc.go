/*
Package scheduler keeps a pool of identical web backends sized to the
request rate their load balancer sees.

Three activities share one Registry:

	offer batches          status updates          control loop (every 10s)
	     │                       │                          │
	     ▼                       ▼                          ▼
	HandleOffers            HandleStatus                 Rescale
	     │                       │                          │
	     └──────────────┬────────┴──────────────────────────┘
	                    ▼
	      Registry (one mutex: tasks, desired, pending kill)
	                    │
	                    ▼  []Effect
	   reply to offers / kill task / register / deregister

Registry methods never perform I/O. Each one returns the effects of its
decision and the Scheduler executes them after the lock is released, in
order, against the Driver and the membership Synchronizer.

# Offers

An offer is accepted only when its host carries no tracked task, the
number of live tasks (pending kill included) is below the desired count or
is zero, and it has at least the configured memory and CPUs. Every offer in
a batch is answered in a single reply: accepted offers launch one task,
the rest are declined.

# Scaling

Each cycle reads the request count over the last two minutes, takes the
most recent sample and computes

	desired = max(floor, floor(sum / targetPerBackend))

Excess tasks are killed lowest id first. A victim is deregistered from the
load balancer before its kill is requested and stays pending kill until a
terminal status arrives. A task pending kill still occupies its host and
still counts against the offer quota, so raising the desired count while
kills are in flight does not launch replacements early.

# Membership

Register and deregister calls reach the load balancer in the order the
registry decided them. The status handler and the control loop hold one
membership mutex from the registry call until their membership effects
return; kills and offer replies run after it is released. The terminal
status of any task whose backend was resolved deregisters it again, which
is harmless on an absent backend.

A failed metrics query skips the cycle and leaves the desired count alone.

# Usage

	reg := scheduler.NewRegistry(scheduler.DefaultPolicy(), resolver)
	sched := scheduler.NewScheduler(scheduler.Options{
		Registry:   reg,
		Driver:     driver,
		Membership: elb,
		Source:     cloudwatch,
	})
	sched.Start()
	defer sched.Stop()
*/
package scheduler
