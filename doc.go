// Package daybook is the Daybook API: progress items on an Eisenhower matrix,
// commitments with daily check-ins, and a timeline of events.
//
// Binaries live under cmd/:
//
//   - cmd/server: the HTTP and websocket API
//   - cmd/migrate: schema migrations
//   - cmd/seed: demo data
//   - cmd/promote-admin: grant or revoke admin
//   - cmd/cli: the daybook command line client
//
// Packages of note under internal/:
//
//   - auth: tokens, refresh rotation, Google sign-in, two-factor and password reset
//   - progress, commitments, timeline: the three record types
//   - dashboard, history: day aggregation and day/week/month bucketing
//   - offlinesync: idempotent outbox replay and the change feed
//   - events, websocket: change fan-out and realtime nudges
//   - search, export: Elasticsearch with a SQL fallback, and S3 exports
package daybook
