// Package secret holds credential material for exactly as long as it is
// needed.
//
// A Password is backed by an anonymous mmap region that is locked into RAM
// and excluded from core dumps. Close zeroes it and releases the mapping.
// When the kernel refuses the lock (RLIMIT_MEMLOCK, unprivileged
// containers) the bytes fall back to a heap slice that is still zeroed on
// Close.
//
// Password never prints its contents: String, GoString and every fmt verb
// render "[redacted]".
package secret
