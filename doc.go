// Package xrelay is a bidirectional message relay. Messages harvested from a
// set of pluggable transport ports (SMS modems, chat bots, test stubs) are
// queued and delivered to the opposite adapter group, with bounded retries
// and pluggable backoff between attempts.
//
// The core is deliberately small: a Port interface (send/fetch one message),
// a bounded FIFO Queue interface, backoff strategies, and the Service that
// drives one "check ports" and one "process queue" cycle per tick. Concrete
// ports live under adapter/ and concrete queues under queue/, constructed via
// an explicit Registry built by the caller at startup.
package xrelay
