// Package redis keeps the bot's subscription index in a Redis hash so several
// bot processes can share what the event indexer has reconstructed.
package redis
