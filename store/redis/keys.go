package redis

import (
	"github.com/relayworks/relay/id"
	"github.com/relayworks/relay/job"
)

// Key layout. Everything lives under one prefix so multiple relay
// deployments can share a Redis instance.
//
//	<p>:job:<id>            job document (JSON)
//	<p>:sched:<queue>       ZSET of waiting job ids, score = run-at ms
//	<p>:running             ZSET of running job ids, score = heartbeat ms
//	<p>:state:<queue>:<st>  SET of job ids per queue and state
//	<p>:paused              SET of paused queue names
//	<p>:dlq:entry:<id>      dead letter document (JSON)
//	<p>:dlq:index           ZSET of entry ids, score = failed-at ms
//	<p>:dlq:queue:<queue>   ZSET of entry ids per queue
//	<p>:<counter key>       rate limit counters (native INCR/PEXPIRE)
type keys struct {
	prefix string
}

func (k keys) job(jobID id.JobID) string { return k.prefix + ":job:" + jobID.String() }

func (k keys) sched(queue string) string { return k.prefix + ":sched:" + queue }

func (k keys) running() string { return k.prefix + ":running" }

func (k keys) state(queue string, st job.State) string {
	return k.prefix + ":state:" + queue + ":" + string(st)
}

func (k keys) paused() string { return k.prefix + ":paused" }

func (k keys) dlqEntry(entryID id.DLQID) string { return k.prefix + ":dlq:entry:" + entryID.String() }

func (k keys) dlqIndex() string { return k.prefix + ":dlq:index" }

func (k keys) dlqQueue(queue string) string { return k.prefix + ":dlq:queue:" + queue }

func (k keys) counter(key string) string { return k.prefix + ":" + key }
