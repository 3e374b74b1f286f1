package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"panelbus/internal/bus"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Call is one inbound invocation from hosted content: "send this payload
// under this type, optionally to this address".
type Call struct {
	Type    string          `json:"type"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound translates script calls into sends on a panel's bus. Message types
// may carry a JSON Schema; payloads of those types are validated before they
// touch the bus, so malformed script input never reaches subscribers. One
// Inbound serves every panel: schemas are keyed by message type, not panel.
type Inbound struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

func NewInbound() *Inbound {
	return &Inbound{
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// RegisterSchema compiles schemaJSON and validates future payloads of
// msgType against it.
func (in *Inbound) RegisterSchema(msgType string, schemaJSON string) error {
	compiler := jsonschema.NewCompiler()
	url := "inline://" + msgType
	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("bridge: add schema for %q: %w", msgType, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("bridge: compile schema for %q: %w", msgType, err)
	}

	in.mu.Lock()
	in.schemas[msgType] = schema
	in.mu.Unlock()
	return nil
}

// Handle validates call and sends it on b. An empty target follows the
// bus's default target policy.
func (in *Inbound) Handle(ctx context.Context, b *bus.Bus, call Call) error {
	if call.Type == "" {
		return fmt.Errorf("bridge: call without type")
	}

	in.mu.RLock()
	schema := in.schemas[call.Type]
	in.mu.RUnlock()
	if schema != nil {
		var doc any
		if err := json.Unmarshal(call.Payload, &doc); err != nil {
			return fmt.Errorf("bridge: %q payload is not JSON: %w", call.Type, err)
		}
		if err := schema.Validate(doc); err != nil {
			return fmt.Errorf("bridge: %q payload rejected: %w", call.Type, err)
		}
	}

	var data any
	if len(call.Payload) > 0 {
		data = call.Payload
	}
	return b.Send(ctx, call.Type, data, call.Target)
}
