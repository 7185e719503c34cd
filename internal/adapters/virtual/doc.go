// Package virtual provides simulated devices for exercising the protocol
// path without hardware: a dimmable lamp with a fade action and a motion
// sensor with periodic events.
package virtual
