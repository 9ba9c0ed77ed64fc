// Package version contains the client version reported to the
// signaling backend.
package version

// Version is the current classkit version.
const Version = "1.0.0"
