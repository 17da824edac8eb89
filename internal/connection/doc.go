// Package connection supervises the two real-time push channels.
//
// Each channel (notifications and user updates) is owned by a Supervisor that
// cycles connect, monitor, close and backoff until the session ends or its
// retry budget is exhausted. The Manager starts and stops both supervisors on
// authentication transitions, a StatusAggregator derives the connected,
// connecting and initializing flags from their states, and a Reconnector
// resumes parked channels after a health probe.
package connection
