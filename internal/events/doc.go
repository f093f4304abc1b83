// Package events publishes committed ledger events to off-chain consumers:
// the audit log, a Redis stream, a RabbitMQ topic exchange and in-process
// subscribers such as the bot's subscription index.
package events
