// Package classkit provides the resilient connection layer for
// virtual-classroom clients: exponential-backoff reconnection, an
// adaptive media session controller, and duplex sync channels for
// AI output and chat.
//
// See README.md for usage examples.
package classkit
