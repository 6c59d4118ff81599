// Package models holds the persisted state of rtmp-auth: the configured
// streams and the secret used to sign frontend tokens.
package models

// NeverExpires is the AuthExpire value of a stream key that does not expire.
const NeverExpires int64 = -1

// Stream is a publish permission for one application/name pair.
//
// AuthExpire is a Unix timestamp in seconds, or NeverExpires. Active is set
// while the streaming server reports a live publisher for this key.
type Stream struct {
	ID          string
	Application string
	Name        string
	AuthKey     string
	AuthExpire  int64
	Notes       string
	Active      bool
	Blocked     bool
}

// Expired reports whether the stream key has expired at now (Unix seconds).
func (s *Stream) Expired(now int64) bool {
	return s.AuthExpire != NeverExpires && s.AuthExpire < now
}

// Path returns the "application/name" form used in logs.
func (s *Stream) Path() string {
	return s.Application + "/" + s.Name
}
