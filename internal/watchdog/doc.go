// Package watchdog periodically asks the reconnector to recover parked
// channels.
//
// The watchdog never forces a reconnect: each tick goes through the
// health-gated path, so a backend that is down is probed at most once per
// interval.
package watchdog
