package socket

import (
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/fabricekabongo/nexmark"
	"github.com/fabricekabongo/nexmark/event"
)

type Operation int32

const (
	OperationUnknown Operation = 0
	OperationPing    Operation = 1
	OperationHealth  Operation = 2
	OperationOpen    Operation = 3
	OperationNext    Operation = 4
	OperationTake    Operation = 5
	OperationResolve Operation = 6
)

type ErrorCode int32

const (
	ErrorCodeOK              ErrorCode = 0
	ErrorCodeBadRequest      ErrorCode = 1
	ErrorCodeUnauthenticated ErrorCode = 2
	ErrorCodeNotFound        ErrorCode = 3
	ErrorCodeOverloaded      ErrorCode = 4
	ErrorCodeInternal        ErrorCode = 5
)

// MaxTake caps the number of events one Take request returns.
const MaxTake = 10_000

type SocketRequest struct {
	RequestId string          `protobuf:"bytes,1,opt,name=request_id,json=requestId,proto3"`
	AuthToken string          `protobuf:"bytes,2,opt,name=auth_token,json=authToken,proto3"`
	Operation int32           `protobuf:"varint,3,opt,name=operation,proto3"`
	Open      *OpenRequest    `protobuf:"bytes,4,opt,name=open,proto3"`
	Take      *TakeRequest    `protobuf:"bytes,5,opt,name=take,proto3"`
	Resolve   *ResolveRequest `protobuf:"bytes,6,opt,name=resolve,proto3"`
	Ping      *PingRequest    `protobuf:"bytes,7,opt,name=ping,proto3"`
}

func (*SocketRequest) Reset()         {}
func (*SocketRequest) String() string { return "SocketRequest" }
func (*SocketRequest) ProtoMessage()  {}

type SocketResponse struct {
	RequestId    string          `protobuf:"bytes,1,opt,name=request_id,json=requestId,proto3"`
	ErrorCode    int32           `protobuf:"varint,2,opt,name=error_code,json=errorCode,proto3"`
	ErrorMessage string          `protobuf:"bytes,3,opt,name=error_message,json=errorMessage,proto3"`
	Events       []*Event        `protobuf:"bytes,4,rep,name=events,proto3"`
	Exhausted    bool            `protobuf:"varint,5,opt,name=exhausted,proto3"`
	Pong         *PongResponse   `protobuf:"bytes,6,opt,name=pong,proto3"`
	Health       *HealthResponse `protobuf:"bytes,7,opt,name=health,proto3"`
	Open         *OpenResponse   `protobuf:"bytes,8,opt,name=open,proto3"`
}

func (*SocketResponse) Reset()         {}
func (*SocketResponse) String() string { return "SocketResponse" }
func (*SocketResponse) ProtoMessage()  {}

// Event carries one record as its kind plus the flat JSON encoding.
type Event struct {
	Kind string `protobuf:"bytes,1,opt,name=kind,proto3"`
	Json []byte `protobuf:"bytes,2,opt,name=json,proto3"`
}

func (*Event) Reset()         {}
func (*Event) String() string { return "Event" }
func (*Event) ProtoMessage()  {}

// OpenRequest mirrors nexmark.Config. Zero fields take the defaults.
type OpenRequest struct {
	NumEventGenerators int32  `protobuf:"varint,1,opt,name=num_event_generators,json=numEventGenerators,proto3"`
	MaxEvents          uint64 `protobuf:"varint,2,opt,name=max_events,json=maxEvents,proto3"`
	FirstEventRate     int32  `protobuf:"varint,3,opt,name=first_event_rate,json=firstEventRate,proto3"`
	Offset             uint64 `protobuf:"varint,4,opt,name=offset,proto3"`
	Step               uint64 `protobuf:"varint,5,opt,name=step,proto3"`
	Seed               uint64 `protobuf:"varint,6,opt,name=seed,proto3"`
}

func (*OpenRequest) Reset()         {}
func (*OpenRequest) String() string { return "OpenRequest" }
func (*OpenRequest) ProtoMessage()  {}

type OpenResponse struct {
	NumEventGenerators int32  `protobuf:"varint,1,opt,name=num_event_generators,json=numEventGenerators,proto3"`
	MaxEvents          uint64 `protobuf:"varint,2,opt,name=max_events,json=maxEvents,proto3"`
	FirstEventRate     int32  `protobuf:"varint,3,opt,name=first_event_rate,json=firstEventRate,proto3"`
	Offset             uint64 `protobuf:"varint,4,opt,name=offset,proto3"`
	Step               uint64 `protobuf:"varint,5,opt,name=step,proto3"`
}

func (*OpenResponse) Reset()         {}
func (*OpenResponse) String() string { return "OpenResponse" }
func (*OpenResponse) ProtoMessage()  {}

type TakeRequest struct {
	N int32 `protobuf:"varint,1,opt,name=n,proto3"`
}

func (*TakeRequest) Reset()         {}
func (*TakeRequest) String() string { return "TakeRequest" }
func (*TakeRequest) ProtoMessage()  {}

type ResolveRequest struct {
	Payload []byte `protobuf:"bytes,1,opt,name=payload,proto3"`
}

func (*ResolveRequest) Reset()         {}
func (*ResolveRequest) String() string { return "ResolveRequest" }
func (*ResolveRequest) ProtoMessage()  {}

type PingRequest struct{}

func (*PingRequest) Reset()         {}
func (*PingRequest) String() string { return "PingRequest" }
func (*PingRequest) ProtoMessage()  {}

type PongResponse struct {
	UnixTimeNs int64 `protobuf:"varint,1,opt,name=unix_time_ns,json=unixTimeNs,proto3"`
}

func (*PongResponse) Reset()         {}
func (*PongResponse) String() string { return "PongResponse" }
func (*PongResponse) ProtoMessage()  {}

type HealthResponse struct {
	Ok      bool   `protobuf:"varint,1,opt,name=ok,proto3"`
	Message string `protobuf:"bytes,2,opt,name=message,proto3"`
}

func (*HealthResponse) Reset()         {}
func (*HealthResponse) String() string { return "HealthResponse" }
func (*HealthResponse) ProtoMessage()  {}

func MarshalMessage(msg proto.Message) ([]byte, error) { return proto.Marshal(msg) }

func UnmarshalRequest(payload []byte) (*SocketRequest, error) {
	var req SocketRequest
	if err := proto.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func UnmarshalResponse(payload []byte) (*SocketResponse, error) {
	var res SocketResponse
	if err := proto.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func ValidateRequest(req *SocketRequest) error {
	if req == nil {
		return fmt.Errorf("nil request")
	}
	switch Operation(req.Operation) {
	case OperationUnknown:
		return fmt.Errorf("operation is required")
	case OperationTake:
		if req.Take == nil {
			return fmt.Errorf("take request required")
		}
	case OperationResolve:
		if req.Resolve == nil {
			return fmt.Errorf("resolve request required")
		}
	}
	return nil
}

// EncodeEvent converts ev to its wire form.
func EncodeEvent(ev event.Event) (*Event, error) {
	if ev.IsZero() {
		return nil, fmt.Errorf("encode zero event")
	}
	b, err := event.EncodeJSON(ev.Value())
	if err != nil {
		return nil, err
	}
	return &Event{Kind: string(ev.Kind()), Json: b}, nil
}

// DecodeEvent restores a wire event by decoding against its declared kind.
func DecodeEvent(e *Event) (event.Event, error) {
	if e == nil {
		return event.Event{}, fmt.Errorf("decode nil event")
	}
	r, err := event.Decode(event.Kind(e.Kind), e.Json)
	if err != nil {
		return event.Event{}, err
	}
	return event.New(r), nil
}

func (o *OpenRequest) config() nexmark.Config {
	cfg := nexmark.DefaultConfig()
	if o == nil {
		return cfg
	}
	if o.NumEventGenerators > 0 {
		cfg.NumEventGenerators = int(o.NumEventGenerators)
	}
	if o.FirstEventRate > 0 {
		cfg.FirstEventRate = int(o.FirstEventRate)
	}
	if o.Step > 0 {
		cfg.Step = o.Step
	}
	cfg.MaxEvents = o.MaxEvents
	cfg.Offset = o.Offset
	cfg.Seed = o.Seed
	return cfg
}

// OpenRequestFor builds the Open payload for cfg.
func OpenRequestFor(cfg nexmark.Config) *OpenRequest {
	return &OpenRequest{
		NumEventGenerators: int32(cfg.NumEventGenerators),
		MaxEvents:          cfg.MaxEvents,
		FirstEventRate:     int32(cfg.FirstEventRate),
		Offset:             cfg.Offset,
		Step:               cfg.Step,
		Seed:               cfg.Seed,
	}
}

func openResponse(cfg nexmark.Config) *OpenResponse {
	return &OpenResponse{
		NumEventGenerators: int32(cfg.NumEventGenerators),
		MaxEvents:          cfg.MaxEvents,
		FirstEventRate:     int32(cfg.FirstEventRate),
		Offset:             cfg.Offset,
		Step:               cfg.Step,
	}
}
