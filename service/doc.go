// Package service hosts the matching engine: the single goroutine that owns
// order books, balances and the dedup guard, fed by an unbounded intake
// queue and backed by the event journal.
//
// It is decoupled from transports; gRPC and Kafka adapters call into it.
package service
