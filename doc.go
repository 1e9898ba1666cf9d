// Package relay provides a durable, multi-tenant background job
// subsystem for per-destination publishing work. It offers named durable
// queues, a bounded-concurrency worker pool, exponential retry with
// backoff, a distributed fixed-window rate limiter, and a dead letter
// queue with operator replay.
//
// Relay is designed as a library, not a service. Import it, configure a
// store, and register processors as ordinary Go functions.
//
// # Quick Start
//
//	r, err := relay.New(
//	    relay.WithStore(redisStore),
//	    relay.WithConcurrency(5),
//	    relay.WithQueues([]string{"publish:youtube", "publish:x"}),
//	)
//
//	eng, err := engine.Build(r)
//	def := job.Define("publish-post", publishPost, job.WithQueue("publish:x"))
//	err = engine.Register(eng, def)
//
//	_, err = engine.Enqueue(ctx, eng, def, PublishPayload{Post: "p1"})
//	err = eng.Start(ctx)
//
// # Architecture
//
// Relay follows a composable store pattern where each subsystem (jobs,
// dead letters, queue state, rate-limit counters) defines its own store
// interface and a single backend implements all of them. The store's
// atomic claim operation is the only mutual exclusion in the system,
// which is what makes multi-process horizontal scaling safe.
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package relay
