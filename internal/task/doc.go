// Package task runs story and LLM operations as queued background tasks.
//
// The API process submits work through a Dispatcher and reads outcomes through
// an Observatory. Worker processes pull envelopes from a Source, execute the
// handler registered for the envelope's Kind, apply the RetryPolicy and write
// every state transition to the ResultBackend. Only workers write task
// records; the API process writes revocation markers and nothing else.
//
// Broker, ResultBackend and ControlPlane are interfaces. In-memory versions
// live in this package for tests and local mode; the NATS JetStream versions
// live in internal/platform/natsq.
package task
