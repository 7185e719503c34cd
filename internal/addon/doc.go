// Package addon holds the plugin-side entity model: adapters, devices,
// properties, actions and events, mirroring what the gateway knows about
// this plugin.
//
// # Structure
//
// A Manager owns Adapters; an Adapter owns Devices; a Device owns
// Properties and records Action invocations. Model changes flow out to the
// gateway through the Emitter interface, which the protocol engine
// implements. Gateway-initiated changes arrive through Manager.HandleMessage.
//
// # Concurrency
//
// One mutex on the Manager guards the whole tree. Handler callbacks
// (AdapterHandler methods) run outside the lock so they can freely call
// back into the model.
//
// # Property conflict resolution
//
// Properties resolve concurrent writes last-write-wins from the plugin's
// point of view: a locally observed value is marked dirty until the gateway
// acknowledges it, and a gateway write landing while dirty is overridden by
// re-asserting the local value. See Property for details.
package addon
