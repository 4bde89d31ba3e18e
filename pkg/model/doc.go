// Package model describes the base objects manipulated by vkv.
//
// The object model is composed of:
//
//  Keys:
//    A slash-delimited logical path identifying a stored byte blob (a metadata document or a chunk).
//
//  Snapshots:
//    A snapshot is an immutable, point in time view of all keys, produced by a commit.
//    This is analogous to a commit in git.
//
//  Branches:
//    A named, mutable pointer to a snapshot. Committing a writable session advances its branch.
//
//  Tags:
//    A named, immutable pointer to a snapshot. Examples: v1, production-2024.
//
//  Version references:
//    A snapshot id, branch name or tag name, used to open sessions.
package model
