// Package identity manages the egress identity used by identity-routed
// transport strategies.
//
// A Rotator hands out the current Handle and can force a new one. Rotation
// is best effort: the Tor provider asks the control port for a new circuit,
// the proxy pool advances to the next configured proxy, and both then poll a
// check URL through the new route until it answers or the rotate timeout
// elapses. Rotation never fails the caller; problems are logged and the
// returned Handle reports Confirmed=false. Two rotations are not guaranteed
// to produce different egress addresses.
package identity
