// Package features turns one session of raw pointer events into the
// mouse-dynamics feature rows: per-event kinematics from a forward pass with a
// one-event lookback, and per-action geometry aggregated over maximal runs of
// equal state and broadcast back onto every member event.
package features
