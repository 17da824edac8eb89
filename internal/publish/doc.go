// Package publish fans routed events out to an AMQP exchange so other
// processes on the machine can react to notifications and status changes.
package publish
