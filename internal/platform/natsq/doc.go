// Package natsq implements the task broker, result backend and worker control
// plane on NATS.
//
// Tasks are published to a JetStream work-queue stream on subjects
// "<prefix>.tasks.<queue>.<kind>" and consumed through one durable pull
// consumer per queue. Records and revocation markers live in a JetStream
// key-value bucket whose TTL is the result retention period. Control
// commands use core NATS scatter-gather on "<prefix>.control.<command>".
package natsq
