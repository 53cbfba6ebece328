// Package api holds the HTTP handlers. Story reads are served directly from
// the store; every mutation and model operation is queued through the task
// dispatcher and answered with a task handle that clients poll under /tasks.
package api
