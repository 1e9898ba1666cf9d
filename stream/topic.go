package stream

import "github.com/relayworks/relay/id"

// Topic selects which events a subscription receives.
type Topic string

// TopicFirehose receives every lifecycle event.
const TopicFirehose Topic = "firehose"

// TopicQueue receives all events for one queue.
func TopicQueue(queue string) Topic { return Topic("queue:" + queue) }

// TopicJob receives all events for one job.
func TopicJob(jobID id.JobID) Topic { return Topic("job:" + jobID.String()) }

// topicsFor returns every topic an event belongs to.
func topicsFor(e Event) [3]Topic {
	return [3]Topic{
		TopicFirehose,
		TopicQueue(e.Queue),
		TopicJob(e.JobID),
	}
}
