package util

// EntryKey returns the storage key for a user key within a namespace.
func EntryKey(ns, userKey string) string {
	return "entry:" + ns + ":" + userKey
}

// EntryPrefix returns the storage-key prefix owning every entry of a namespace.
func EntryPrefix(ns string) string {
	return "entry:" + ns + ":"
}

// LockKey returns the lock-region key for a user key within a namespace.
func LockKey(ns, userKey string) string {
	return "lock:" + ns + ":" + userKey
}
