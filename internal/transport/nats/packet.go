package nats

import (
	"bytes"
	"encoding/json"

	"github.com/abgdnv/product-catalog/internal/transport/reply"
)

// inbound is a request packet: {"id": "...", "pattern": "...", "data": <payload>}.
type inbound struct {
	ID      string
	Pattern string
	Data    json.RawMessage
}

// outbound is a reply packet. Exactly one of Response and Err is set.
type outbound struct {
	ID         string           `json:"id,omitempty"`
	Response   *reply.Envelope  `json:"response,omitempty"`
	Err        *reply.ErrorBody `json:"err,omitempty"`
	IsDisposed bool             `json:"isDisposed"`
}

// decodePacket unwraps a request packet. A body without a "data" member is the payload itself.
func decodePacket(body []byte) inbound {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		if data, ok := fields["data"]; ok {
			in := inbound{Data: data}
			if raw, ok := fields["id"]; ok {
				_ = json.Unmarshal(raw, &in.ID)
			}
			if raw, ok := fields["pattern"]; ok {
				_ = json.Unmarshal(raw, &in.Pattern)
			}
			return in
		}
	}
	return inbound{Data: body}
}

// payload returns the request payload, an empty object when absent.
func (in inbound) payload() []byte {
	trimmed := bytes.TrimSpace(in.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}")
	}
	return trimmed
}
