// Package kv exposes a versioned repository as a hierarchical key/value store.
//
// Keys are slash-delimited logical paths such as "group/array/c/0/0". Every mutation goes to the active session,
// and becomes durable only when committed as an immutable snapshot. Any snapshot, branch or tag may later be
// checked out again, read-only or writable on a branch.
//
// An absent key is not an error: Get, GetRange and Size report it with a found flag.
//
// A Store serializes mutations and version changes against all other operations, while reads run concurrently.
package kv
