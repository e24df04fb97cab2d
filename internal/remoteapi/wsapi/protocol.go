package wsapi

import (
	"github.com/alamak-sim/copsimcar/internal/remoteapi"
)

// Remote function names understood by the scene-side server.
const (
	FuncObjectHandle   = "getObjectHandle"
	FuncTargetPosition = "setJointTargetPosition"
	FuncTargetVelocity = "setJointTargetVelocity"
	FuncForceLimit     = "setJointForce"
	FuncStartStream    = "startVisionSensorStream"
	FuncCallScript     = "callScriptFunction"
)

// TypeImage marks a pushed stream message.
const TypeImage = "image"

// Request is sent for every remote call. Replies carry the same ID.
type Request struct {
	ID       string `json:"id"`
	Func     string `json:"func"`
	Args     []any  `json:"args"`
	Blocking bool   `json:"blocking"`
}

// Message is anything the server sends: a reply to a request, or a stream
// push when Type is TypeImage. Image is base64 on the wire.
type Message struct {
	Type   string               `json:"type,omitempty"`
	ID     string               `json:"id,omitempty"`
	Ret    remoteapi.ReturnCode `json:"ret"`
	Handle remoteapi.Handle     `json:"handle"`
	Image  []byte               `json:"image,omitempty"`
}
