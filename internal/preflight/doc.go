// Package preflight provides readiness checks for the filesystem paths and
// remote endpoint stash depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each failing check.
//   - The CLI "stash status" command renders the same results alongside the
//     daemon probe.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
