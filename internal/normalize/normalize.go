// Package normalize turns arbitrary caller payloads into a canonical Query.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/AltairaLabs/discovery-agent/internal/coordinator/config"
)

// Kind records which resolution rule produced a Query's text
type Kind int

const (
	KindEmpty Kind = iota
	KindText
	KindMapping
	KindSequence
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMapping:
		return "mapping"
	case KindSequence:
		return "sequence"
	case KindOther:
		return "other"
	default:
		return "empty"
	}
}

// Query is the canonical, always non-empty text of one caller turn
type Query struct {
	Text string
	// Metadata holds the extra fields of a mapping input; downstream code ignores it unless asked
	Metadata map[string]any
	Kind     Kind
	// Sentinel is set when loose mode substituted NoInputSentinel for unresolvable input
	Sentinel bool
}

// Lower returns the lowercased query text used for routing
func (q Query) Lower() string {
	return strings.ToLower(q.Text)
}

// ErrValidation is wrapped by every strict-mode rejection
var ErrValidation = errors.New("validation error")

// ValidationError reports input without a resolvable primary field
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// DefaultPrimaryKeys are tried in order when the input is a mapping
var DefaultPrimaryKeys = []string{"input", "prompt", "message", "query", "content"}

// Normalizer resolves raw input. The zero value is a loose normalizer with the default keys.
type Normalizer struct {
	Strict      bool
	PrimaryKeys []string
}

// New returns a Normalizer
func New(strict bool) *Normalizer {
	return &Normalizer{Strict: strict, PrimaryKeys: DefaultPrimaryKeys}
}

// Normalize resolves raw in loose mode. It never fails.
func Normalize(raw any) Query {
	q, _ := (&Normalizer{}).Normalize(raw)
	return q
}

// Normalize resolves raw to a Query. In loose mode the error is always nil.
func (n *Normalizer) Normalize(raw any) (Query, error) {
	q, reason := n.resolve(raw, 0)
	if reason == "" {
		return q, nil
	}
	if n.Strict {
		return Query{}, &ValidationError{Reason: reason}
	}
	return Query{
		Text:     config.NoInputSentinel,
		Metadata: q.Metadata,
		Kind:     KindEmpty,
		Sentinel: true,
	}, nil
}

const maxDepth = 8

// resolve returns the query and, when no text could be resolved, the reason why
func (n *Normalizer) resolve(raw any, depth int) (Query, string) {
	if depth > maxDepth {
		return Query{Text: stringify(raw), Kind: KindOther}, ""
	}

	switch v := raw.(type) {
	case nil:
		return Query{}, "input is empty"
	case string:
		return textQuery(v)
	case []byte:
		return n.resolveBytes(v, depth)
	case json.RawMessage:
		return n.resolveBytes(v, depth)
	case map[string]any:
		return n.resolveMapping(v, depth)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		return n.resolveMapping(m, depth)
	case []any:
		if len(v) == 0 {
			return Query{Kind: KindSequence}, "input sequence is empty"
		}
		return n.resolveLast(v[len(v)-1], depth)
	case []string:
		if len(v) == 0 {
			return Query{Kind: KindSequence}, "input sequence is empty"
		}
		return n.resolveLast(v[len(v)-1], depth)
	case []map[string]any:
		if len(v) == 0 {
			return Query{Kind: KindSequence}, "input sequence is empty"
		}
		return n.resolveLast(v[len(v)-1], depth)
	case fmt.Stringer:
		return otherQuery(v.String())
	default:
		return otherQuery(stringify(v))
	}
}

func (n *Normalizer) resolveBytes(b []byte, depth int) (Query, string) {
	var decoded any
	if err := json.Unmarshal(b, &decoded); err == nil {
		return n.resolve(decoded, depth+1)
	}
	return textQuery(string(b))
}

func (n *Normalizer) resolveMapping(m map[string]any, depth int) (Query, string) {
	keys := n.PrimaryKeys
	if len(keys) == 0 {
		keys = DefaultPrimaryKeys
	}

	// A present but blank primary field falls through to the next key
	var (
		first       Query
		firstReason string
	)
	for _, key := range keys {
		val, ok := m[key]
		if !ok {
			continue
		}
		inner, reason := n.resolve(val, depth+1)
		inner.Kind = KindMapping
		inner.Metadata = metadataExcept(m, key)
		if reason == "" {
			return inner, ""
		}
		if firstReason == "" {
			first, firstReason = inner, reason
		}
	}
	if firstReason != "" {
		return first, firstReason
	}

	if len(m) == 0 {
		return Query{Kind: KindMapping}, "input mapping is empty"
	}
	if n.Strict {
		return Query{Kind: KindMapping, Metadata: metadataExcept(m, "")},
			fmt.Sprintf("no primary field (one of %s)", strings.Join(keys, ", "))
	}
	q, reason := otherQuery(stringify(m))
	q.Metadata = metadataExcept(m, "")
	return q, reason
}

// resolveLast normalizes the final element of a chat history
func (n *Normalizer) resolveLast(last any, depth int) (Query, string) {
	q, reason := n.resolve(last, depth+1)
	q.Kind = KindSequence
	return q, reason
}

func textQuery(s string) (Query, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Query{Kind: KindText}, "input text is blank"
	}
	return Query{Text: s, Kind: KindText}, ""
}

func otherQuery(s string) (Query, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Query{Kind: KindOther}, "input is empty"
	}
	return Query{Text: s, Kind: KindOther}, ""
}

func metadataExcept(m map[string]any, skip string) map[string]any {
	if len(m) == 0 || (len(m) == 1 && skip != "") {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k != skip {
			out[k] = v
		}
	}
	return out
}

func stringify(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
