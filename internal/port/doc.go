// Package port checks host port availability before a container publishes
// ports, so that "port is already allocated" is reported up front with the
// offending spec instead of as a daemon error after the container exists.
//
// The Scanner verifies OS-level availability via net.Listen and
// net.ListenPacket. The Checker combines scanning with the ports already
// reserved by managed containers and can pick a free host port from the
// IANA ephemeral range (49152-65535).
package port
