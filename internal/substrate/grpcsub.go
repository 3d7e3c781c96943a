package substrate

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const serviceName = "oshmpi.substrate"

// GRPC is the real, multi-process C1 backend: one gRPC server per PE,
// peer-to-peer unary calls for put/get/atomics, and a centralized-rendezvous
// RPC for collectives. It has no generated .pb.go: messages are plain
// structs (messages.go), dispatched through a hand-registered
// grpc.ServiceDesc and the gob codec (codec.go) — see codec.go's doc
// comment for why that is the chosen, pack-grounded technique instead of a
// protoc build step.
//
// Grounded on inprocgrpc/internal/transport's separation of call dispatch
// from transport framing, and on grpc-proxy's existence as proof that
// hand-registering a grpc.ServiceDesc against a non-default codec is within
// this codebase family's idiom.
type GRPC struct {
	rank  int
	addrs map[int]string // world rank -> dial address; addrs[rank] is this PE's own listen address

	server   *grpc.Server
	listener net.Listener

	winMu   sync.Mutex
	windows map[Window][]byte

	coordMu sync.Mutex
	gen     map[string]int
	rounds  map[string]*round

	connMu sync.Mutex
	conns  map[int]*grpc.ClientConn
}

// NewGRPCSubstrate starts a gRPC server for this PE (rank) on its entry in
// addrs, and returns a Substrate that can reach every other entry. The
// launcher (out of scope per spec.md §1) is responsible for handing every
// PE the same addrs map, computed however it likes (static config,
// a rendezvous service, etc) — this runtime only ever consumes it.
func NewGRPCSubstrate(rank int, addrs map[int]string) (*GRPC, error) {
	own, ok := addrs[rank]
	if !ok {
		return nil, fmt.Errorf("substrate: no listen address for rank %d", rank)
	}
	lis, err := net.Listen("tcp", own)
	if err != nil {
		return nil, fmt.Errorf("substrate: listen %s: %w", own, err)
	}
	g := &GRPC{
		rank:    rank,
		addrs:   addrs,
		listener: lis,
		windows: make(map[Window][]byte),
		gen:     make(map[string]int),
		rounds:  make(map[string]*round),
		conns:   make(map[int]*grpc.ClientConn),
	}
	g.server = grpc.NewServer()
	g.server.RegisterService(&serviceDesc, g)
	go g.server.Serve(lis)
	return g, nil
}

func (g *GRPC) dial(pe int) (*grpc.ClientConn, error) {
	g.connMu.Lock()
	defer g.connMu.Unlock()
	if conn, ok := g.conns[pe]; ok {
		return conn, nil
	}
	addr, ok := g.addrs[pe]
	if !ok {
		return nil, fmt.Errorf("substrate: no address for rank %d", pe)
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	g.conns[pe] = conn
	return conn, nil
}

func (g *GRPC) invoke(ctx context.Context, pe int, method string, req, resp any) error {
	conn, err := g.dial(pe)
	if err != nil {
		return err
	}
	return conn.Invoke(ctx, "/"+serviceName+"/"+method, req, resp, grpc.CallContentSubtype(codecName))
}

func (g *GRPC) WorldRank() int { return g.rank }
func (g *GRPC) WorldSize() int { return len(g.addrs) }
func (g *GRPC) GroupWorld() Group {
	return WorldComm(len(g.addrs)).Group
}

// CommSplitByNode has no real topology source wired in this runtime (no
// hostname/NUMA discovery substrate dependency was grounded in the pack);
// conservatively, every PE is treated as its own node, matching a
// deployment where every PE is a separate host. See SPEC_FULL.md §4 — this
// is the one place the network substrate is deliberately more conservative
// than the in-process one.
func (g *GRPC) CommSplitByNode(ctx context.Context) (Comm, error) {
	return Comm{Group: NewGroup([]int{g.rank}), id: fmt.Sprintf("node-of-%d", g.rank)}, nil
}

func (g *GRPC) GroupIncl(ctx context.Context, gr Group, ranks []int) (Group, error) {
	members := make([]int, len(ranks))
	copy(members, ranks)
	return NewGroup(members), nil
}

func (g *GRPC) CommCreateGroup(ctx context.Context, gr Group, tag int) (Comm, error) {
	return commFromGroup(gr, tag), nil
}

func (g *GRPC) GroupTranslateRanks(src Group, ranks []int, dst Group) []int {
	out := make([]int, len(ranks))
	for i, r := range ranks {
		if r < 0 || r >= src.Size() {
			out[i] = -1
			continue
		}
		if local, ok := dst.Rank(src.members[r]); ok {
			out[i] = local
		} else {
			out[i] = -1
		}
	}
	return out
}

func coordinatorOf(members []int) int {
	c := members[0]
	for _, m := range members[1:] {
		if m < c {
			c = m
		}
	}
	return c
}

// join is the rendezvous a comm's designated coordinator (its lowest world
// rank) runs, whether invoked by an RPC from a peer or directly by the
// coordinator's own call into doJoin.
func (g *GRPC) join(ctx context.Context, commID string, members []int, selfRank int, contribution []byte) ([][]byte, error) {
	slot := -1
	for i, m := range members {
		if m == selfRank {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("substrate: pe %d not a member of comm %s", selfRank, commID)
	}

	g.coordMu.Lock()
	gen := g.gen[commID]
	roundKey := fmt.Sprintf("%s#%d", commID, gen)
	r, ok := g.rounds[roundKey]
	if !ok {
		r = &round{total: len(members), contribs: make([][]byte, len(members)), done: make(chan struct{})}
		g.rounds[roundKey] = r
	}
	r.contribs[slot] = contribution
	r.arrived++
	arrivedAll := r.arrived == r.total
	if arrivedAll {
		g.gen[commID] = gen + 1
		delete(g.rounds, roundKey)
	}
	g.coordMu.Unlock()

	if arrivedAll {
		close(r.done)
		return r.contribs, nil
	}
	select {
	case <-r.done:
		return r.contribs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *GRPC) doJoin(ctx context.Context, c Comm, contribution []byte) ([][]byte, error) {
	members := c.Group.Members()
	coordinator := coordinatorOf(members)
	if coordinator == g.rank {
		return g.join(ctx, c.ID(), members, g.rank, contribution)
	}
	req := &joinRequest{CommID: c.ID(), Members: members, SelfRank: g.rank, Contribution: contribution}
	resp := new(joinResponse)
	if err := g.invoke(ctx, coordinator, "Join", req, resp); err != nil {
		return nil, err
	}
	return resp.All, nil
}

func (g *GRPC) Barrier(ctx context.Context, c Comm) error {
	_, err := g.doJoin(ctx, c, nil)
	return err
}

func (g *GRPC) Bcast(ctx context.Context, c Comm, root int, buf []byte) error {
	var contribution []byte
	if g.rank == root {
		contribution = append([]byte(nil), buf...)
	}
	all, err := g.doJoin(ctx, c, contribution)
	if err != nil {
		return err
	}
	rootLocal, ok := c.Group.Rank(root)
	if !ok || rootLocal >= len(all) || all[rootLocal] == nil {
		return fmt.Errorf("substrate: bcast root %d did not contribute", root)
	}
	copy(buf, all[rootLocal])
	return nil
}

func (g *GRPC) Allgather(ctx context.Context, c Comm, send []byte) ([][]byte, error) {
	return g.doJoin(ctx, c, append([]byte(nil), send...))
}

func (g *GRPC) Allreduce(ctx context.Context, c Comm, dt Datatype, op ReduceOp, send []byte, count int) ([]byte, error) {
	all, err := g.doJoin(ctx, c, append([]byte(nil), send...))
	if err != nil {
		return nil, err
	}
	return reduceBytes(dt, op, all, count)
}

func (g *GRPC) Alltoall(ctx context.Context, c Comm, send [][]byte) ([][]byte, error) {
	encoded := encodeAlltoall(g.rank, send)
	all, err := g.doJoin(ctx, c, encoded)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(c.Group.Members()))
	myPos, ok := c.Group.Rank(g.rank)
	if !ok {
		return out, nil
	}
	for senderPos, payload := range all {
		if payload == nil {
			continue
		}
		perDest := decodeAlltoall(payload)
		if myPos < len(perDest) {
			out[senderPos] = perDest[myPos]
		}
	}
	return out, nil
}

func (g *GRPC) WinAllocate(ctx context.Context, w Window, size int) ([]byte, error) {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	if buf, ok := g.windows[w]; ok {
		return buf, nil
	}
	buf := make([]byte, size)
	g.windows[w] = buf
	return buf, nil
}

func (g *GRPC) WinLockAll(w Window) error        { return nil }
func (g *GRPC) WinUnlockAll(w Window) error       { return nil }
func (g *GRPC) WinFlush(w Window, pe int) error      { return nil }
func (g *GRPC) WinFlushLocal(w Window, pe int) error { return nil }
func (g *GRPC) WinFlushAll(w Window) error           { return nil }
func (g *GRPC) WinSync(w Window) error               { return nil }
func (g *GRPC) WinFree(w Window) error {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	delete(g.windows, w)
	return nil
}

func (g *GRPC) Put(ctx context.Context, w Window, pe int, offset int64, data []byte) error {
	if pe == g.rank {
		return g.localPut(w, offset, data)
	}
	req := &putRequest{Window: w, Offset: offset, Data: data}
	return g.invoke(ctx, pe, "Put", req, new(putResponse))
}

func (g *GRPC) Get(ctx context.Context, w Window, pe int, offset int64, data []byte) error {
	if pe == g.rank {
		return g.localGet(w, offset, data)
	}
	req := &getRequest{Window: w, Offset: offset, Length: len(data)}
	resp := new(getResponse)
	if err := g.invoke(ctx, pe, "Get", req, resp); err != nil {
		return err
	}
	copy(data, resp.Data)
	return nil
}

func (g *GRPC) Accumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) error {
	if pe == g.rank {
		_, err := g.localAtomic(w, offset, dt, op, data, false)
		return err
	}
	req := &atomicRequest{Window: w, Offset: offset, Datatype: dt, Op: op, Data: data}
	return g.invoke(ctx, pe, "Accumulate", req, new(atomicResponse))
}

func (g *GRPC) GetAccumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) ([]byte, error) {
	if pe == g.rank {
		return g.localAtomic(w, offset, dt, op, data, true)
	}
	req := &atomicRequest{Window: w, Offset: offset, Datatype: dt, Op: op, Data: data}
	resp := new(atomicResponse)
	if err := g.invoke(ctx, pe, "GetAccumulate", req, resp); err != nil {
		return nil, err
	}
	return resp.Old, nil
}

func (g *GRPC) FetchAndOp(ctx context.Context, w Window, pe int, offset int64, dt Datatype, operand []byte) ([]byte, error) {
	return g.GetAccumulate(ctx, w, pe, offset, dt, OpAdd, operand)
}

func (g *GRPC) CompareAndSwap(ctx context.Context, w Window, pe int, offset int64, dt Datatype, expected, newValue []byte) ([]byte, error) {
	if pe == g.rank {
		return g.localCAS(w, offset, expected, newValue)
	}
	req := &casRequest{Window: w, Offset: offset, Datatype: dt, Expected: expected, New: newValue}
	resp := new(casResponse)
	if err := g.invoke(ctx, pe, "CompareAndSwap", req, resp); err != nil {
		return nil, err
	}
	return resp.Old, nil
}

// LocalBase never permits the fast path across the network substrate: every
// PE is its own process and its own address space.
func (g *GRPC) LocalBase(w Window, pe int) ([]byte, bool) {
	if pe != g.rank {
		return nil, false
	}
	g.winMu.Lock()
	defer g.winMu.Unlock()
	buf, ok := g.windows[w]
	return buf, ok
}

func (g *GRPC) NodeLocalRanks() []int { return []int{g.rank} }

func (g *GRPC) Wtime() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func (g *GRPC) Finalize() error {
	g.connMu.Lock()
	for _, c := range g.conns {
		c.Close()
	}
	g.connMu.Unlock()
	g.server.GracefulStop()
	return nil
}

func (g *GRPC) GlobalExit(code int) {
	g.server.Stop()
	panic(fmt.Sprintf("substrate: global_exit(%d)", code))
}

func (g *GRPC) localPut(w Window, offset int64, data []byte) error {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	buf, ok := g.windows[w]
	if !ok {
		return fmt.Errorf("substrate: put to unallocated window %s", w)
	}
	copy(buf[offset:], data)
	return nil
}

func (g *GRPC) localGet(w Window, offset int64, data []byte) error {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	buf, ok := g.windows[w]
	if !ok {
		return fmt.Errorf("substrate: get from unallocated window %s", w)
	}
	copy(data, buf[offset:])
	return nil
}

func (g *GRPC) localAtomic(w Window, offset int64, dt Datatype, op AtomicOp, data []byte, wantOld bool) ([]byte, error) {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	buf, ok := g.windows[w]
	if !ok {
		return nil, fmt.Errorf("substrate: atomic on unallocated window %s", w)
	}
	var old []byte
	if wantOld {
		old = make([]byte, len(data))
	}
	applyAtomic(buf, offset, dt, op, data, old)
	return old, nil
}

func (g *GRPC) localCAS(w Window, offset int64, expected, newValue []byte) ([]byte, error) {
	g.winMu.Lock()
	defer g.winMu.Unlock()
	buf, ok := g.windows[w]
	if !ok {
		return nil, fmt.Errorf("substrate: cas on unallocated window %s", w)
	}
	size := len(newValue)
	old := append([]byte(nil), buf[offset:offset+int64(size)]...)
	if bytesEqual(old, expected) {
		copy(buf[offset:], newValue)
	}
	return old, nil
}

var _ Substrate = (*GRPC)(nil)
