package messaging

import (
	"hash/fnv"
	"strconv"
)

const (
	// DefaultTopic is the topic exception events are published to.
	DefaultTopic = "exceptions"

	// DefaultConsumerGroup names the monitor's durable consumer(s).
	DefaultConsumerGroup = "exception-monitor-group"

	// DefaultStream is the JetStream stream backing the topic.
	DefaultStream = "EXCEPTIONS"

	// HeaderExceptionID carries the event id.
	HeaderExceptionID = "Exception-Id"
)

// StreamSubjects returns the subjects a stream must capture for topic: the
// bare topic (single partition) and every partition below it.
func StreamSubjects(topic string) []string {
	return []string{topic, topic + ".>"}
}

// PartitionFor maps a message key onto one of n partitions. Messages with the
// same key always land on the same partition.
func PartitionFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// PartitionSubject returns the subject of partition p. With a single
// partition the subject is the topic itself.
func PartitionSubject(topic string, partitions, p int) string {
	if partitions <= 1 {
		return topic
	}
	return topic + "." + strconv.Itoa(p)
}

// SubjectFor returns the subject a message with key must be published on.
func SubjectFor(topic string, partitions int, key string) string {
	return PartitionSubject(topic, partitions, PartitionFor(key, partitions))
}

// ConsumerName returns the durable consumer name of partition p for group.
func ConsumerName(group string, partitions, p int) string {
	if partitions <= 1 {
		return group
	}
	return group + "-" + strconv.Itoa(p)
}
