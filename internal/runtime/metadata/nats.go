package metadata

import "github.com/nats-io/nats.go"

// FromNATS flattens NATS headers, keeping the first value of each key.
func FromNATS(h nats.Header) Metadata {
	if len(h) == 0 {
		return nil
	}
	result := make(Metadata, len(h))
	for k, v := range h {
		if len(v) > 0 {
			result[k] = v[0]
		}
	}
	return result
}

// ToNATS converts metadata into NATS headers. Empty metadata yields nil so
// header-less servers keep working.
func ToNATS(md Metadata) nats.Header {
	if len(md) == 0 {
		return nil
	}
	h := make(nats.Header, len(md))
	for k, v := range md {
		h.Set(k, v)
	}
	return h
}
