// Package protocol defines the list request/response messages exchanged on
// the gossip topic and the node identity they are addressed with.
//
// Both messages carry a top-level "type" tag so a response is never mistaken
// for a request. The list mode is a tagged union:
//
//	{"type":"all"}
//	{"type":"one","peer":"<peer id>"}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DobryySoul/recipeshare/internal/recipe"
)

// DefaultTopic is the topic recipes are shared on.
const DefaultTopic = "recipes"

const (
	typeListRequest  = "list_request"
	typeListResponse = "list_response"
)

var (
	// ErrNotListRequest means a payload is not a list request. Callers treat it
	// as an uninteresting message, not a failure.
	ErrNotListRequest = errors.New("protocol: not a list request")
	// ErrNotListResponse means a payload is not a list response.
	ErrNotListResponse = errors.New("protocol: not a list response")
)

// Identity is the node context: who we are on the overlay and which topic we
// share records on. It is built once at startup and handed to every component
// that addresses peers.
type Identity struct {
	PeerID string
	Topic  string
}

// ModeKind discriminates ListMode.
type ModeKind string

const (
	ModeAll ModeKind = "all"
	ModeOne ModeKind = "one"
)

// ListMode selects a broadcast (All) or a directed (One) list request.
type ListMode struct {
	Kind ModeKind
	Peer string
}

// All returns the broadcast mode.
func All() ListMode {
	return ListMode{Kind: ModeAll}
}

// One returns a mode directed at peer.
func One(peer string) ListMode {
	return ListMode{Kind: ModeOne, Peer: peer}
}

func (m ListMode) String() string {
	if m.Kind == ModeOne {
		return "one(" + m.Peer + ")"
	}
	return string(m.Kind)
}

func (m ListMode) validate() error {
	switch m.Kind {
	case ModeAll:
		if m.Peer != "" {
			return fmt.Errorf("protocol: mode all carries peer %q", m.Peer)
		}
		return nil
	case ModeOne:
		if m.Peer == "" {
			return fmt.Errorf("protocol: mode one without peer")
		}
		return nil
	default:
		return fmt.Errorf("protocol: unknown list mode %q", m.Kind)
	}
}

type modeWire struct {
	Type ModeKind `json:"type"`
	Peer string   `json:"peer,omitempty"`
}

func (m ListMode) MarshalJSON() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(modeWire{Type: m.Kind, Peer: m.Peer})
}

func (m *ListMode) UnmarshalJSON(data []byte) error {
	var wire modeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	mode := ListMode{Kind: wire.Type, Peer: wire.Peer}
	if err := mode.validate(); err != nil {
		return err
	}
	*m = mode
	return nil
}

// ListRequest asks peers for their public records.
type ListRequest struct {
	Mode ListMode
}

// ListResponse answers a ListRequest. Receiver is the peer that asked.
type ListResponse struct {
	Mode     ListMode
	Data     []recipe.Record
	Receiver string
}

type requestWire struct {
	Type string   `json:"type"`
	Mode ListMode `json:"mode"`
}

type responseWire struct {
	Type     string          `json:"type"`
	Mode     ListMode        `json:"mode"`
	Data     []recipe.Record `json:"data"`
	Receiver string          `json:"receiver"`
}

func EncodeRequest(req ListRequest) ([]byte, error) {
	return json.Marshal(requestWire{Type: typeListRequest, Mode: req.Mode})
}

// DecodeRequest parses a list request. Any other payload yields an error
// wrapping ErrNotListRequest.
func DecodeRequest(data []byte) (ListRequest, error) {
	var wire requestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return ListRequest{}, fmt.Errorf("%w: %v", ErrNotListRequest, err)
	}
	if wire.Type != typeListRequest {
		return ListRequest{}, fmt.Errorf("%w: type %q", ErrNotListRequest, wire.Type)
	}
	if err := wire.Mode.validate(); err != nil {
		return ListRequest{}, fmt.Errorf("%w: %v", ErrNotListRequest, err)
	}
	return ListRequest{Mode: wire.Mode}, nil
}

func EncodeResponse(resp ListResponse) ([]byte, error) {
	if resp.Receiver == "" {
		return nil, fmt.Errorf("protocol: response without receiver")
	}
	return json.Marshal(responseWire{
		Type:     typeListResponse,
		Mode:     resp.Mode,
		Data:     recipe.Clone(resp.Data),
		Receiver: resp.Receiver,
	})
}

// DecodeResponse parses a list response. Any other payload yields an error
// wrapping ErrNotListResponse.
func DecodeResponse(data []byte) (ListResponse, error) {
	var wire responseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return ListResponse{}, fmt.Errorf("%w: %v", ErrNotListResponse, err)
	}
	if wire.Type != typeListResponse {
		return ListResponse{}, fmt.Errorf("%w: type %q", ErrNotListResponse, wire.Type)
	}
	if err := wire.Mode.validate(); err != nil {
		return ListResponse{}, fmt.Errorf("%w: %v", ErrNotListResponse, err)
	}
	return ListResponse{
		Mode:     wire.Mode,
		Data:     recipe.Clone(wire.Data),
		Receiver: wire.Receiver,
	}, nil
}
