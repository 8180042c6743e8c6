// Package connectivity tracks whether the host is online and tells
// subscribers when that changes.
//
// A Tracker caches the last observed state and fans each environment event out
// to its listeners in registration order. Events come from a Source: the
// netlink source follows kernel network events, the static source never
// changes. Sources only emit edges; the tracker trusts them and notifies on
// every event it receives.
package connectivity
