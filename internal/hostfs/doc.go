// Package hostfs maps well-known host paths under a configurable root.
//
// The agent reads a handful of host files directly:
//
//	/etc/passwd        account names for identity resolution
//	/proc/self/stat    process start time for the unix-process subject
//	/etc/lumauth/...   system configuration layers
//
// Root is "/" in production. Tests point it at a temporary directory.
package hostfs
