// Package state keeps conversation sessions in memory, keyed by chat.
// Sessions are volatile and vanish with the process.
package state
