package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRef aliases a PID so telemetry messages can carry a reply address
// without dragging the actor runtime into every package that builds them.
type ActorRef actor.PID

// ActorRequestMixIn is embedded by every request message. ReplyToRef is
// optional: left nil, the response goes to the runtime sender (which is how
// the HTTP layer's futures get answered); an actor relaying a request on
// another's behalf sets it to the original asker instead.
type ActorRequestMixIn struct {
	ReplyToRef *ActorRef
}

type ActorRequest interface {
	ReplyTo() *ActorRef
}

func (r ActorRequestMixIn) ReplyTo() *ActorRef {
	return r.ReplyToRef
}

// ActorResponseMixIn is embedded by every response message. A non-nil
// ResponseError marks the whole response as failed; payload fields are not
// meaningful in that case.
type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) GetResponseError() error {
	return r.ResponseError
}

func (r ActorResponseMixIn) HasResponseError() bool {
	return r.ResponseError != nil
}

type ActorResponse interface {
	GetResponseError() error
	HasResponseError() bool
}
