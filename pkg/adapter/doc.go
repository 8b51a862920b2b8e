// Package adapter contains the channel delivery backends: transactional
// mail through Postmark, sms and push through JSON-over-HTTP vendor
// gateways, and the in-app feed.
//
// All adapters implement the same Adapter interface and are shared by the
// dispatch workers. Delivery errors carry retry semantics: errors wrapped
// with Terminal (missing endpoint, vendor rejected the recipient) fail the
// job immediately, everything else (timeouts, 5xx, connection errors) is
// retried with backoff by the dispatcher.
package adapter
