// Package keys derives the Redis keys this module reads and writes.
//
// Every key is a pure function of its inputs: no escaping is performed,
// so callers must not pass groupID/memberID values containing ":".
package keys

// AssignmentPrefix is the namespace under which assignment documents live.
const AssignmentPrefix = "assignment:"

// ForAssignment returns the Redis key holding memberID's assignment within groupID.
func ForAssignment(groupID, memberID string) string {
	return AssignmentPrefix + groupID + ":" + memberID
}

// ForChannel returns the Redis Streams key for a channel name.
//
// Channels map onto stream keys verbatim today; this function exists so a
// future namespacing scheme has a single call site to change.
func ForChannel(channel string) string {
	return channel
}
