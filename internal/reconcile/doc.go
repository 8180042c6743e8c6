// Package reconcile replays queued actions against a remote endpoint.
//
// The Driver watches the connectivity tracker: it drains the queue when the
// environment comes online and cancels an in-flight pass when it goes
// offline. Successful items are removed; failed items are marked with
// Queue.Retry and picked up again on a later pass paced by exponential
// backoff. Items that reached the configured attempt ceiling are left in
// place for an operator to inspect or clear.
package reconcile
