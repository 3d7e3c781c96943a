package substrate

// Wire messages for the gRPC substrate (internal/substrate/grpcsub.go).
// Plain Go structs, gob-encoded via gobCodec — see its doc comment for why
// there is no generated .pb.go here.

type putRequest struct {
	Window Window
	Offset int64
	Data   []byte
}

type putResponse struct{}

type getRequest struct {
	Window Window
	Offset int64
	Length int
}

type getResponse struct {
	Data []byte
}

type atomicRequest struct {
	Window   Window
	Offset   int64
	Datatype Datatype
	Op       AtomicOp
	Data     []byte
}

type atomicResponse struct {
	Old []byte
}

type casRequest struct {
	Window   Window
	Offset   int64
	Datatype Datatype
	Expected []byte
	New      []byte
}

type casResponse struct {
	Old []byte
}

type joinRequest struct {
	CommID       string
	Members      []int
	SelfRank     int
	Contribution []byte
}

type joinResponse struct {
	All [][]byte
}
