// Package message defines the wire messages exchanged between two arc-rpc endpoints.
//
// Every message travels over the Message Channel as a named event carrying an
// opaque payload. The event name selects the message kind; the payload is the
// codec-encoded struct. The names below are the protocol vocabulary — they must
// stay distinct from each other and from application-defined user events.
package message

// Event names for each message kind. User events travel under EventUser with
// the application's event id inside the payload, so applications can never
// collide with the protocol's own events.
const (
	EventCallRequest    = "arc:call-request"
	EventCallResponse   = "arc:call-response"
	EventCallbackInvoke = "arc:callback-invoke"
	EventSnapshot       = "arc:snapshot-update"
	EventProperty       = "arc:property-update"
	EventUser           = "arc:user-event"
)

// Argument is the wire form of a single call or callback argument.
//
//   - Plain values: IsFunc is false and Value carries the codec's own
//     representation of the value.
//   - Function values: IsFunc is true and ID names a callback registration on
//     the sending side. The receiver reconstructs it as a stub that fires
//     CallbackInvoke messages back at that id.
type Argument struct {
	IsFunc bool   `json:"isFunc,omitempty"`
	ID     string `json:"id,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// CallRequest asks the peer to invoke the member at Path on its exposed object.
//
// Path is the ordered list of property names from the object root down to the
// invocable member; ParentPath (Path minus the final segment) names the value
// the invocation is bound to, preserving receiver identity. ResponseID is
// unique per request and correlates the eventual CallResponse.
type CallRequest struct {
	Path       []string   `json:"path"`
	ParentPath []string   `json:"parentPath"`
	ResponseID string     `json:"responseId"`
	Args       []Argument `json:"args"`
}

// CallResponse is the single reply to a CallRequest, matched by ResponseID.
// Exactly one of Result or Error is meaningful, selected by IsError.
type CallResponse struct {
	ResponseID string     `json:"responseId"`
	IsError    bool       `json:"isError"`
	Result     any        `json:"result,omitempty"`
	Error      *WireError `json:"error,omitempty"`
}

// WireError is a serialized invocation or resolution failure. Message is
// always present; Type and Stack are filled in when the failure carries them
// (a recovered panic, for example).
type WireError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// CallbackInvoke fires a function argument previously shipped as an Argument
// with IsFunc set. Callbacks are one-way: no response message exists, and the
// sender learns nothing about the outcome.
type CallbackInvoke struct {
	CallbackID string     `json:"callbackId"`
	Args       []Argument `json:"args"`
}

// Snapshot replaces the receiver's entire cached view of the remote exposed
// object with Tree (the object's data members, functions excluded).
type Snapshot struct {
	Tree map[string]any `json:"tree"`
}

// Property applies a single leaf mutation to the receiver's cached tree.
// Missing intermediate objects are created on the way down.
type Property struct {
	Path  []string `json:"path"`
	Value any      `json:"value"`
}

// UserEvent is an application-defined broadcast. No response is expected.
type UserEvent struct {
	EventID string `json:"eventId"`
	Args    []any  `json:"args"`
}
