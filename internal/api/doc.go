// Package api exposes the HTTP surface of the automation engine: read-only
// views over strategies, bundles, subscriptions and the registry, the bot job
// endpoints guarded by bearer tokens, Prometheus metrics and a health probe.
package api
