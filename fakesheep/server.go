// Package fakesheep is an in-memory Sheepdog cluster stand-in for tests and
// local development: it speaks exactly the opcodes sdclient issues, backed
// by a map instead of a disk-sharded object store, and is restricted to the
// request shapes this core actually sends. It is test/CLI-demo
// infrastructure, not a production backing-store target.
package fakesheep

import (
	"net"
	"sync"

	_ "github.com/sdstack/sdbs/cache/memory"
	_ "github.com/sdstack/sdbs/hash/xxhash"

	"github.com/sdstack/sdbs/cache"
	"github.com/sdstack/sdbs/hash"
	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

// inodeCacheSize bounds the number of inode objects (kept as their wire
// bytes) the object cache holds, the same role golang-lru plays for the teacher's own
// object-cache engine.
const inodeCacheSize = 64

// Server holds every VDI's inode and data objects in memory and answers
// requests from a single accept loop, one goroutine per connection —
// matching the teacher's proxy/sheepdog handleConn model, minus its
// pluggable disk-backed engine.
type Server struct {
	mu      sync.Mutex
	store   map[uint64][]byte
	vdis    map[string]uint32 // name -> live VID
	vidName map[uint32]string // VID -> owning name, for staleness checks
	cacheOn bool
	nextVID uint32

	// inodeCache mirrors the real cluster's object-cache: a hit spares a
	// READ_OBJ against an inode oid from touching s.store at all. Only
	// populated when cacheOn is true — FLUSH_VDI's SUCCESS/INVALID_PARMS
	// split is exactly "does this sheep have one of these to flush".
	inodeCache cache.Cache

	ln   net.Listener
	done chan struct{}
}

// NewServer builds a fakesheep cluster. cacheOn controls FLUSH_VDI's
// response (true answers SUCCESS, false answers INVALID_PARMS the way a
// cache-less sheep does) and whether inode reads are served out of an LRU
// ahead of the object store.
func NewServer(cacheOn bool) *Server {
	s := &Server{
		store:   make(map[uint64][]byte),
		vdis:    make(map[string]uint32),
		vidName: make(map[uint32]string),
		cacheOn: cacheOn,
		done:    make(chan struct{}),
	}
	if cacheOn {
		if c, err := cache.New("memory-lru", inodeCacheSize); err == nil {
			if err := c.OnEvict(nil); err == nil {
				s.inodeCache = c
			}
		}
	}
	return s
}

// Listen starts accepting connections on laddr (e.g. "127.0.0.1:0" to pick
// a free port) and returns the address actually bound (host:port).
func (s *Server) Listen(laddr string) (string, error) {
	ln, err := transport.Listen("tcp", laddr)
	if err != nil {
		return "", err
	}
	s.ln = ln
	return ln.Addr().String(), nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				return
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	close(s.done)
	if s.inodeCache != nil {
		s.inodeCache.Purge()
	}
	return s.ln.Close()
}

// CreateVDI registers a brand-new VDI named name, vdiSize bytes, with no
// parent, and returns its VID.
func (s *Server) CreateVDI(name string, vdiSize uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createVDILocked(name, vdiSize), nil
}

// createVDILocked assumes s.mu is already held.
func (s *Server) createVDILocked(name string, vdiSize uint64) uint32 {
	vid := s.allocVID(name)

	var inode sdproto.Inode
	inode.SetName(name)
	inode.VdiSize = vdiSize
	inode.VdiID = vid
	inode.NrCopies = 1

	oid := sdproto.VIDToVdiOid(vid)
	buf := inode.Marshal()
	s.store[oid] = buf
	s.inodeCacheSet(oid, buf)
	s.vdis[name] = vid
	s.vidName[vid] = name
	return vid
}

// Snapshot freezes the VDI's current VID as a parent and makes a new VID
// the live head of the chain, the way taking a snapshot or cloning a VDI
// does in the real cluster: any write that still targets the old VID's
// data objects is now stale and must be reloaded. The new inode starts as
// a full copy of the old one (sharing every data-object pointer) so the
// first write to each index triggers the normal create/COW path in volume.
func (s *Server) Snapshot(name string) (newVID uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldVID, ok := s.vdis[name]
	if !ok {
		return 0, sdproto.ErrVdiNotFound
	}

	var oldInode sdproto.Inode
	oldInode.Unmarshal(s.store[sdproto.VIDToVdiOid(oldVID)])

	newVID = s.allocVID(name)
	newInode := oldInode
	newInode.VdiID = newVID
	newInode.ParentVdiID = oldVID
	newInode.SnapID = oldInode.SnapID + 1

	newOid, oldOid := sdproto.VIDToVdiOid(newVID), sdproto.VIDToVdiOid(oldVID)
	newBuf := newInode.Marshal()
	s.store[newOid] = newBuf
	s.inodeCacheSet(newOid, newBuf)

	oldInode.ChildVdiID[0] = newVID
	oldBuf := oldInode.Marshal()
	s.store[oldOid] = oldBuf
	s.inodeCacheSet(oldOid, oldBuf)

	s.vdis[name] = newVID
	s.vidName[newVID] = name
	return newVID, nil
}

// allocVID hashes name with the registered xxhash algorithm to pick a
// starting VID and linearly probes past any collision, mirroring the
// teacher's name2vdi hashing without its fixed 32-bit VDI space.
func (s *Server) allocVID(name string) uint32 {
	var candidate uint32
	if h, err := hash.New("xxhash"); err == nil {
		if h64, ok := h.(interface{ Sum64() uint64 }); ok {
			h.Reset()
			h.Write([]byte(name))
			candidate = uint32(h64.Sum64()) & 0x00FFFFFF
		}
	}
	if candidate == 0 {
		candidate = 1
	}
	for {
		if _, taken := s.vidName[candidate]; !taken {
			return candidate
		}
		candidate++
	}
}
