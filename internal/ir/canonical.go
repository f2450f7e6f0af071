package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// canonicalName NFC-normalizes a symbol or local name so that visually
// identical names cannot produce distinct symbols.
func canonicalName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// BlockSummary is the control-flow view of one block.
type BlockSummary struct {
	ID    BlockID  `json:"id"`
	Name  string   `json:"name"`
	Succs []string `json:"succs"`
	Calls []string `json:"calls,omitempty"`
}

// FunctionSummary is the control-flow view of a function: its blocks,
// their edges and the calls each block makes, in order.
type FunctionSummary struct {
	Name    string         `json:"name"`
	Linkage string         `json:"linkage"`
	Params  []string       `json:"params"`
	Blocks  []BlockSummary `json:"blocks"`
}

// Summarize extracts the control-flow summary of f.
func Summarize(f *Function) FunctionSummary {
	s := FunctionSummary{
		Name:    f.name,
		Linkage: f.Linkage.String(),
		Params:  []string{},
		Blocks:  []BlockSummary{},
	}
	for _, p := range f.Params {
		s.Params = append(s.Params, p.name)
	}
	for _, b := range f.Blocks {
		bs := BlockSummary{ID: b.ID, Name: b.name, Succs: []string{}}
		for _, succ := range b.Succs() {
			bs.Succs = append(bs.Succs, succ.name)
		}
		for _, in := range b.Instrs {
			if callee := in.Callee(); callee != nil {
				bs.Calls = append(bs.Calls, callee.name)
			}
		}
		s.Blocks = append(s.Blocks, bs)
	}
	return s
}

// MarshalCanonical produces canonical JSON: object keys sorted, no HTML
// escaping, strings NFC-normalized, no floats. It accepts structs by
// round-tripping them through encoding/json with UseNumber.
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return fmt.Errorf("floats are forbidden in canonical JSON: %s", val)
		}
		buf.WriteString(string(val))
	case string:
		return writeCanonicalString(buf, val)
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
