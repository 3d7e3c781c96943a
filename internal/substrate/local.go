package substrate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fabric is a shared, in-process simulation of a multi-PE world: every PE
// is a goroutine-bound Local instance sharing this one object, instead of a
// separate OS process. It exists so every engine package in this module can
// be exercised end-to-end (spec.md §8's scenarios) from a single test
// binary, without an external process launcher.
//
// Grounded on github.com/joeycumines/go-inprocgrpc's Channel: a single
// shared object routes calls between logical peers without a network hop,
// using a handler/dispatch map instead of sockets.
type Fabric struct {
	size  int
	peers []*peerState

	collMu sync.Mutex
	gen    map[string]int
	rounds map[string]*round
}

type peerState struct {
	mu      sync.Mutex
	windows map[Window][]byte
}

// round is one in-flight collective invocation over a Comm.
type round struct {
	total    int
	arrived  int
	contribs [][]byte // indexed by position within the comm's member list
	done     chan struct{}
}

// NewFabric creates a Fabric for size PEs. Use Local(rank) to obtain each
// PE's Substrate handle.
func NewFabric(size int) *Fabric {
	f := &Fabric{
		size:   size,
		peers:  make([]*peerState, size),
		gen:    make(map[string]int),
		rounds: make(map[string]*round),
	}
	for i := range f.peers {
		f.peers[i] = &peerState{windows: make(map[Window][]byte)}
	}
	return f
}

// Local is one PE's view of a Fabric.
type Local struct {
	fab  *Fabric
	rank int
}

// Local returns the Substrate implementation for world rank pe.
func (f *Fabric) Local(pe int) *Local {
	if pe < 0 || pe >= f.size {
		panic(fmt.Sprintf("substrate: local rank %d out of range [0,%d)", pe, f.size))
	}
	return &Local{fab: f, rank: pe}
}

func (l *Local) WorldRank() int { return l.rank }
func (l *Local) WorldSize() int { return l.fab.size }
func (l *Local) GroupWorld() Group {
	return WorldComm(l.fab.size).Group
}

// CommSplitByNode: the whole Fabric is, by definition, one node (a single
// OS process), so this returns WorldComm.
func (l *Local) CommSplitByNode(ctx context.Context) (Comm, error) {
	return WorldComm(l.fab.size), nil
}

func (l *Local) GroupIncl(ctx context.Context, g Group, ranks []int) (Group, error) {
	members := make([]int, len(ranks))
	copy(members, ranks)
	return NewGroup(members), nil
}

func (l *Local) CommCreateGroup(ctx context.Context, g Group, tag int) (Comm, error) {
	return commFromGroup(g, tag), nil
}

func commFromGroup(g Group, tag int) Comm {
	id := fmt.Sprintf("tag%d:%v", tag, g.members)
	return Comm{Group: g, id: id}
}

func (l *Local) GroupTranslateRanks(src Group, ranks []int, dst Group) []int {
	out := make([]int, len(ranks))
	for i, r := range ranks {
		if r < 0 || r >= len(src.members) {
			out[i] = -1
			continue
		}
		world := src.members[r]
		if local, ok := dst.Rank(world); ok {
			out[i] = local
		} else {
			out[i] = -1
		}
	}
	return out
}

// joinRound implements the shared rendezvous used by every data-moving
// collective: each of comm's members contributes a byte slice, placed at
// its fixed position within the communicator's member list (not arrival
// order), and blocks until every member has arrived. All callers then see
// the same ordered slice of contributions.
func (f *Fabric) joinRound(ctx context.Context, c Comm, selfRank int, contribution []byte) ([][]byte, error) {
	slot, ok := c.Group.Rank(selfRank)
	if !ok {
		return nil, fmt.Errorf("substrate: pe %d is not a member of comm %s", selfRank, c.ID())
	}

	f.collMu.Lock()
	key := c.ID()
	gen := f.gen[key]
	roundKey := fmt.Sprintf("%s#%d", key, gen)
	r, ok := f.rounds[roundKey]
	if !ok {
		r = &round{total: len(c.Group.Members()), contribs: make([][]byte, len(c.Group.Members())), done: make(chan struct{})}
		f.rounds[roundKey] = r
	}
	r.contribs[slot] = contribution
	r.arrived++
	arrivedAll := r.arrived == r.total
	if arrivedAll {
		f.gen[key] = gen + 1
		delete(f.rounds, roundKey)
	}
	f.collMu.Unlock()

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

func (l *Local) Barrier(ctx context.Context, c Comm) error {
	_, err := l.fab.joinRound(ctx, c, l.rank, nil)
	return err
}

func (l *Local) Bcast(ctx context.Context, c Comm, root int, buf []byte) error {
	var contribution []byte
	if l.rank == root {
		contribution = append([]byte(nil), buf...)
	}
	all, err := l.fab.joinRound(ctx, c, l.rank, contribution)
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

func (l *Local) Allgather(ctx context.Context, c Comm, send []byte) ([][]byte, error) {
	all, err := l.fab.joinRound(ctx, c, l.rank, append([]byte(nil), send...))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(all))
	copy(out, all)
	return out, nil
}

func (l *Local) Allreduce(ctx context.Context, c Comm, dt Datatype, op ReduceOp, send []byte, count int) ([]byte, error) {
	all, err := l.fab.joinRound(ctx, c, l.rank, append([]byte(nil), send...))
	if err != nil {
		return nil, err
	}
	return reduceBytes(dt, op, all, count)
}

func (l *Local) Alltoall(ctx context.Context, c Comm, send [][]byte) ([][]byte, error) {
	// send is this PE's slice-per-destination; flatten into one
	// contribution. Position within the round already identifies the
	// sender (joinRound places it at the sender's comm-relative slot), but
	// each receiver still needs its own per-destination slice out of that
	// slot's payload, which is itself indexed by destination position.
	encoded := encodeAlltoall(l.rank, send)
	all, err := l.fab.joinRound(ctx, c, l.rank, encoded)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(c.Group.Members()))
	myPos, ok := c.Group.Rank(l.rank)
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

func (l *Local) WinAllocate(ctx context.Context, w Window, size int) ([]byte, error) {
	p := l.fab.peers[l.rank]
	p.mu.Lock()
	defer p.mu.Unlock()
	if buf, ok := p.windows[w]; ok {
		return buf, nil
	}
	buf := make([]byte, size)
	p.windows[w] = buf
	return buf, nil
}

func (l *Local) WinLockAll(w Window) error   { return nil }
func (l *Local) WinUnlockAll(w Window) error { return nil }
func (l *Local) WinFlush(w Window, pe int) error      { return nil }
func (l *Local) WinFlushLocal(w Window, pe int) error { return nil }
func (l *Local) WinFlushAll(w Window) error           { return nil }
func (l *Local) WinSync(w Window) error               { return nil }
func (l *Local) WinFree(w Window) error {
	p := l.fab.peers[l.rank]
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.windows, w)
	return nil
}

func (l *Local) window(w Window, pe int) *peerState { return l.fab.peers[pe] }

func (l *Local) Put(ctx context.Context, w Window, pe int, offset int64, data []byte) error {
	p := l.window(w, pe)
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	if !ok {
		return fmt.Errorf("substrate: put to unallocated window %s on pe %d", w, pe)
	}
	copy(buf[offset:], data)
	return nil
}

func (l *Local) Get(ctx context.Context, w Window, pe int, offset int64, data []byte) error {
	p := l.window(w, pe)
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	if !ok {
		return fmt.Errorf("substrate: get from unallocated window %s on pe %d", w, pe)
	}
	copy(data, buf[offset:])
	return nil
}

func (l *Local) Accumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) error {
	p := l.window(w, pe)
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	if !ok {
		return fmt.Errorf("substrate: accumulate to unallocated window %s on pe %d", w, pe)
	}
	applyAtomic(buf, offset, dt, op, data, nil)
	return nil
}

func (l *Local) GetAccumulate(ctx context.Context, w Window, pe int, offset int64, dt Datatype, op AtomicOp, data []byte) ([]byte, error) {
	p := l.window(w, pe)
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	if !ok {
		return nil, fmt.Errorf("substrate: get_accumulate on unallocated window %s on pe %d", w, pe)
	}
	old := make([]byte, len(data))
	applyAtomic(buf, offset, dt, op, data, old)
	return old, nil
}

func (l *Local) FetchAndOp(ctx context.Context, w Window, pe int, offset int64, dt Datatype, operand []byte) ([]byte, error) {
	return l.GetAccumulate(ctx, w, pe, offset, dt, OpAdd, operand)
}

func (l *Local) CompareAndSwap(ctx context.Context, w Window, pe int, offset int64, dt Datatype, expected, newValue []byte) ([]byte, error) {
	p := l.window(w, pe)
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	if !ok {
		return nil, fmt.Errorf("substrate: compare_and_swap on unallocated window %s on pe %d", w, pe)
	}
	size := len(newValue)
	old := append([]byte(nil), buf[offset:offset+int64(size)]...)
	if bytesEqual(old, expected) {
		copy(buf[offset:], newValue)
	}
	return old, nil
}

func (l *Local) LocalBase(w Window, pe int) ([]byte, bool) {
	p := l.fab.peers[pe]
	p.mu.Lock()
	defer p.mu.Unlock()
	buf, ok := p.windows[w]
	return buf, ok
}

func (l *Local) NodeLocalRanks() []int {
	ranks := make([]int, l.fab.size)
	for i := range ranks {
		ranks[i] = i
	}
	return ranks
}

func (l *Local) Wtime() float64 { return float64(time.Now().UnixNano()) / 1e9 }
func (l *Local) Finalize() error { return nil }
func (l *Local) GlobalExit(code int) {
	panic(fmt.Sprintf("substrate: global_exit(%d)", code))
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var _ Substrate = (*Local)(nil)
