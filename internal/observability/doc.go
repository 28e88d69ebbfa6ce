// Package observability records lifecycle and delivery events in an
// append-only JSON Lines log and derives metrics and alerts from it on
// demand.
package observability
