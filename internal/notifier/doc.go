// Package notifier delivers task reminders.
//
// A reminder is composed into a subject and body, rate limited, sent through
// the configured Sender (log, email or telegram) with a small retry budget,
// and recorded in the delivery history.
//
// # History
//
// Every attempt is appended to the audit store when one is configured. The
// service also keeps a small in-memory history so the history endpoint works
// without persistent storage.
package notifier
