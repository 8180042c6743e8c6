// Package daemonctl starts and stops a background stashd from the CLI.
//
// Liveness comes from the daemon's flock (see preflight.ProbeDaemon) and the
// process id from the pid file stashd writes while running. Stop sends
// SIGTERM and escalates to SIGKILL after a grace period.
package daemonctl
