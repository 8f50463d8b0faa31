// Package platform defines the boundary between the bridge engine and its
// two external collaborators: the conversational-agent (bot) platform and
// the live human-agent chat service.
//
// Each collaborator is expressed as a capability interface (actions the
// engine may invoke) plus a typed stream of inbound events. The engine never
// registers ad-hoc callbacks with a platform; it consumes the Events()
// channel and calls capability methods.
//
// The package also carries the vocabulary shared across the engine
// (origins, delivery statuses, media descriptors, transcript entries) and
// in-memory fake implementations of both collaborators used by tests and
// the simulator binary.
package platform
