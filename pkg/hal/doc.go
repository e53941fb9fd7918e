// Package hal defines the capability contracts a connectivity engine programs
// against: audio, battery, Bluetooth classic, BLE, secure element, OS
// primitives and persistence, plus the Factory of OS resources and mediums
// available on rich targets.
//
// Every fallible operation returns a Status. Events raised by a backend reach
// the single registered handler of a capability through a Bridge, which
// serializes delivery on the platform's main thread.
package hal
