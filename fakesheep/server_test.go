package fakesheep

import (
	"testing"
	"time"

	"github.com/sdstack/sdbs/sdclient"
	"github.com/sdstack/sdbs/sdproto"
	"github.com/sdstack/sdbs/transport"
)

func startServer(t *testing.T, cacheOn bool) (*Server, string) {
	t.Helper()
	s := NewServer(cacheOn)
	addr, err := s.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s, addr
}

func dial(t *testing.T, addr string) *sdclient.Client {
	t.Helper()
	conn, err := transport.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return sdclient.New(conn)
}

func TestLockVdiAndReadWriteObject(t *testing.T) {
	s, addr := startServer(t, false)
	vid, err := s.CreateVDI("disk0", 1<<20)
	if err != nil {
		t.Fatalf("CreateVDI: %v", err)
	}

	c := dial(t, addr)
	defer c.Close()

	gotVID, err := c.LockVDI("disk0")
	if err != nil {
		t.Fatalf("LockVDI: %v", err)
	}
	if gotVID != vid {
		t.Fatalf("LockVDI = %d, want %d", gotVID, vid)
	}

	oid := sdproto.VIDToDataOid(vid, 0)
	if err := c.WriteObject(oid, []byte("payload"), 0, true, 0); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}

	buf := make([]byte, len("payload"))
	if err := c.ReadObject(oid, buf, 0); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(buf) != "payload" {
		t.Fatalf("got %q, want %q", buf, "payload")
	}
}

func TestFlushVdiRespectsCacheToggle(t *testing.T) {
	_, addr := startServer(t, true)
	c := dial(t, addr)
	defer c.Close()

	cached, err := c.FlushVDI(1)
	if err != nil {
		t.Fatalf("FlushVDI: %v", err)
	}
	if !cached {
		t.Fatalf("expected cached=true when server has an object cache")
	}
}

func TestCacheOnServesInodeReadsFromLRU(t *testing.T) {
	s, addr := startServer(t, true)
	vid, err := s.CreateVDI("disk2", 1<<20)
	if err != nil {
		t.Fatalf("CreateVDI: %v", err)
	}
	oid := sdproto.VIDToVdiOid(vid)

	if s.inodeCache == nil {
		t.Fatalf("expected a configured inode cache when cacheOn=true")
	}
	if _, err := s.inodeCache.Get(oid); err != nil {
		t.Fatalf("expected CreateVDI to populate the inode cache, got miss: %v", err)
	}

	c := dial(t, addr)
	defer c.Close()

	buf := make([]byte, sdproto.InodeSize)
	if err := c.ReadObject(oid, buf, 0); err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	var got sdproto.Inode
	got.Unmarshal(buf)
	if got.VdiID != vid {
		t.Fatalf("got VdiID=%d, want %d", got.VdiID, vid)
	}
}

func TestCacheOffLeavesInodeCacheNil(t *testing.T) {
	s, _ := startServer(t, false)
	if s.inodeCache != nil {
		t.Fatalf("expected no inode cache when cacheOn=false")
	}
}

func TestSnapshotMakesOldVidStale(t *testing.T) {
	s, addr := startServer(t, false)
	oldVID, err := s.CreateVDI("disk1", 1<<20)
	if err != nil {
		t.Fatalf("CreateVDI: %v", err)
	}

	c := dial(t, addr)
	defer c.Close()

	oid := sdproto.VIDToDataOid(oldVID, 3)
	if err := c.WriteObject(oid, []byte("first"), 0, true, 0); err != nil {
		t.Fatalf("initial write: %v", err)
	}

	if _, err := s.Snapshot("disk1"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	err = c.WriteObject(oid, []byte("second"), 0, false, 0)
	if !sdproto.IsReadonly(err) {
		t.Fatalf("expected READONLY writing to a superseded VID, got %v", err)
	}
}
