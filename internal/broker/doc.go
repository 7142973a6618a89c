// Package broker provides the pub/sub transport behind the usage side
// channel. A Broker hands out named topics; the engine publishes one usage
// record per completed call and interested consumers subscribe without ever
// blocking or failing the primary call path. Two implementations exist: an
// in-process broker for single-binary deployments and tests, and a NATS
// broker for shipping records to an external accounting collaborator.
package broker
