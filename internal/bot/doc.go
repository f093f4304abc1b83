// Package bot is the off-chain executor. It indexes subscription parameters
// from committed ledger events, plans jobs on a cron schedule, queues them
// and executes them through the strategy executor with the bot's identity.
package bot
