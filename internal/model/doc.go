// Package model declares the persisted and in-flight records shared by the
// automation engine: registry ids, strategy templates, bundles, subscriptions,
// proxies, recipes and emitted events.
package model
