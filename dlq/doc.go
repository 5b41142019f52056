// Package dlq provides inspection and replay of dead letter queues, and a
// cron-driven monitor reporting their contents.
//
// Replaying an event takes it out of the dead letter queue and publishes it
// again with its original type, a fresh timestamp, a zero retry count and the
// simulated-error flag cleared. If it fails again, the queue puts it back.
package dlq
