// Package model defines the domain types and value objects for whalesnake.
//
// It holds the identity validators (content ids, image names, container
// names), the snapshot types cached by container and image entities, the
// daemon record types returned by the adapter, and the error taxonomy shared
// by the library and the CLI.
//
// The package has no dependency on the Docker SDK. Snapshots and records are
// transient copies of daemon-reported state and are never persisted.
package model
