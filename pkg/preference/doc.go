// Package preference stores per-user notification channel settings and
// resolves them into concrete channel lists during dispatch.
//
// A user's settings map each notification category to a set of enabled
// channels. Users who never saved settings get the defaults: every category
// delivers to the in-app feed only. In-app delivery can never be switched
// off, and non-suppressible categories (security alerts, system notices)
// ignore mail opt-outs.
//
// The Resolver caches resolved settings for a short TTL so the dispatch
// hot path does not query the store once per job:
//
//	resolver := preference.NewResolver(store, preference.WithCacheTTL(time.Minute))
//	channels, err := resolver.Resolve(ctx, userID, notification.CategoryOrderCreated)
package preference
