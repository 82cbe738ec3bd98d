package relay

import "github.com/matst80/unirelay/internal/httpx"

// MessageKind tags what an inbound stream message carries.
type MessageKind int

const (
	KindEmpty   MessageKind = iota // zero-length message
	KindRequest                    // embedded HTTP request
	KindConnect                    // CONNECT request opening a tunnel
	KindOpaque                     // anything else, tunnel payload
)

func (k MessageKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindRequest:
		return "request"
	case KindConnect:
		return "connect"
	default:
		return "opaque"
	}
}

// Message is a classified inbound message.
type Message struct {
	Kind MessageKind
	Raw  []byte
	// Target is the request target for KindRequest and KindConnect.
	Target string
}

// Classify decides how a message is dispatched. A message is an embedded request only when
// it starts with a CRLF terminated UTF-8 request line.
func Classify(raw []byte) Message {
	if len(raw) == 0 {
		return Message{Kind: KindEmpty, Raw: raw}
	}
	method, target, _, ok := httpx.RequestLine(raw)
	switch {
	case !ok:
		return Message{Kind: KindOpaque, Raw: raw}
	case method == "CONNECT":
		return Message{Kind: KindConnect, Raw: raw, Target: target}
	default:
		return Message{Kind: KindRequest, Raw: raw, Target: target}
	}
}
