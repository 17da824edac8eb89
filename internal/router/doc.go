// Package router decodes inbound channel frames and turns them into events.
package router
