// Package docker resolves user-supplied strings into container and image
// entities and keeps a local snapshot of each entity consistent with the
// Docker daemon across lifecycle operations.
//
// This package handles:
//   - Client construction with automatic socket detection
//     (Linux, macOS, Windows) and API version negotiation
//   - The Daemon interface and its Docker Engine SDK implementation
//   - Container and Image entities: identity resolution, snapshot refresh
//     and precondition-checked lifecycle operations
//   - Collection queries over the daemon's container and image listings
//   - Decoding of pull and build progress streams
//   - Management labels for containers created by whalesnake
//
// Entities are not safe for concurrent use. Independent entities may be
// used from independent goroutines; two entities addressing the same remote
// container see whatever their last refresh observed.
package docker
