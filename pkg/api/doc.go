/*
Package api serves the operational endpoints of the scheduler process.

HTTP (HealthServer, default 127.0.0.1:9090):

	GET /health      liveness, always 200, per-component detail
	GET /ready       200 once subscribed to the master, 503 otherwise
	GET /metrics     Prometheus exposition
	GET /state       registry snapshot: desired count, tasks, pending kill
	GET /decisions   recent journaled scale decisions, ?limit=N (404 when the journal is off)

gRPC (Server, default 127.0.0.1:9091) registers only the standard
grpc.health.v1 service. Both "" and "elbscaler" report SERVING while the
mesos client holds a subscription, so the process can sit behind any
load balancer or orchestrator that speaks the gRPC health protocol.

Example:

	hs := api.NewHealthServer(health, sched, store)
	go hs.Start(cfg.API.HTTPAddr)

	grpcSrv := api.NewServer()
	go grpcSrv.Start(cfg.API.GRPCAddr)
	mesosCfg.OnSubscription = grpcSrv.SetServing
*/
package api
