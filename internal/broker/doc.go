// Package broker wraps the Kafka clients used by the relay.
//
// The producer is a sarama AsyncProducer with bounded enqueue and a delivery
// callback per record. Consumers are selected by driver name ("kafkago",
// "sarama") and expose a poll/commit interface with manual offset commits.
package broker
