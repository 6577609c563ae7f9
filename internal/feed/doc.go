// Package feed streams ticker events from the exchange websocket.
//
// An Adapter owns one connection for its lifetime:
//
//	Disconnected → Connecting → Subscribed → Streaming → Disconnected
//
// It never reconnects on its own. The Supervisor runs adapters in a loop with
// exponential backoff and jitter.
package feed
