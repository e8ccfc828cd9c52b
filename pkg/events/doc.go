// Package events provides an in-memory broker that carries reducer deltas
// from the state reducer to observers such as the mirror engine, decoupling
// the reducer's pure index mutation from any side-effecting consumer.
package events
