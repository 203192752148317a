package cluster

import (
	"fmt"
	"strings"
	"time"

	"github.com/codewandler/cbridge-go/internal/reflector"
)

const (
	envHeaderKey      = "x-cbr-key"
	reservedHeaderPfx = "x-cbr-"
)

type EnvelopeOption func(*Envelope)

func WithHeader(key, value string) EnvelopeOption {
	return func(e *Envelope) {
		if e.Headers == nil {
			e.Headers = make(map[string]string)
		}
		e.Headers[key] = value
	}
}

// WithTTL drops the envelope when it was not delivered within d.
func WithTTL(d time.Duration) EnvelopeOption {
	return func(e *Envelope) {
		e.TTLMs = d.Milliseconds()
		if e.CreatedAtMs == 0 {
			e.CreatedAtMs = time.Now().UnixMilli()
		}
	}
}

type Envelope struct {
	Shard       int               `json:"shard"`
	Type        string            `json:"type"`
	Data        []byte            `json:"data"`
	ReplyTo     string            `json:"reply_to,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	TTLMs       int64             `json:"ttl_ms,omitempty"`
	CreatedAtMs int64             `json:"created_at_ms,omitempty"`
}

// Key returns the routed key set by [Client.Key], if any.
func (e Envelope) Key() (string, bool) {
	return e.GetHeader(envHeaderKey)
}

func (e Envelope) GetHeader(key string) (string, bool) {
	if e.Headers == nil {
		return "", false
	}
	v, ok := e.Headers[key]
	return v, ok
}

// TTL returns the remaining time-to-live, or 0 when none is set or it
// already elapsed.
func (e Envelope) TTL() time.Duration {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return 0
	}
	remaining := time.Until(time.UnixMilli(e.CreatedAtMs + e.TTLMs))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether a set TTL elapsed.
func (e Envelope) Expired() bool {
	if e.TTLMs <= 0 || e.CreatedAtMs <= 0 {
		return false
	}
	return time.Now().UnixMilli() > e.CreatedAtMs+e.TTLMs
}

// Validate rejects envelopes carrying reserved headers. The key header is
// the one x-cbr-* header callers may set (via Client.Key).
func (e Envelope) Validate() error {
	for k := range e.Headers {
		lk := strings.ToLower(k)
		if lk == envHeaderKey {
			continue
		}
		if strings.HasPrefix(lk, reservedHeaderPfx) {
			return fmt.Errorf("%w: %s", ErrReservedHeader, k)
		}
	}
	return nil
}

func getMessageType(v any) string {
	switch t := v.(type) {
	case interface{ messageType() string }:
		return t.messageType()
	case interface{ MessageType() string }:
		return t.MessageType()
	default:
		return reflector.TypeInfoOf(v).Name
	}
}
