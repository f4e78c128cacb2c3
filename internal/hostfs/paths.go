package hostfs

// Well-known host file locations.
const (
	EtcPasswdRel    = "etc/passwd"
	ProcSelfStatRel = "proc/self/stat"
)
