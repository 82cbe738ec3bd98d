package relay

// CheckHandshake validates the first frame of a session. The policy accepts any
// structurally present frame and rejects only an empty one; it is a compatibility gate,
// not an authentication boundary.
func CheckHandshake(raw []byte) bool {
	return len(raw) > 0
}
