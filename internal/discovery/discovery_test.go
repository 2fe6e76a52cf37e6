package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/events"
	"github.com/lanxfer/lanxfer/internal/logger"
)

func newTestService() *Service {
	self := Self{Hostname: "test-host", Platform: "linux", IP: net.ParseIP("192.0.2.1")}
	return NewService(self, events.NewBus(), logger.New())
}

// TestUpsertReportsNewOnFirstSight covers reply-once rule:
// a peer's first sighting must be reported as new so the listen loop
// knows to reply, and every subsequent sighting must not be.
func TestUpsertReportsNewOnFirstSight(t *testing.T) {
	s := newTestService()
	ip := net.ParseIP("192.0.2.2")

	if !s.upsert(ip, "host-a", "linux") {
		t.Fatal("first upsert of a peer must report isNew == true")
	}
	if s.upsert(ip, "host-a", "linux") {
		t.Fatal("second upsert of the same peer must report isNew == false")
	}

	snap := s.Snapshot()
	if len(snap.Peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(snap.Peers))
	}
}

// TestEvictStaleRemovesOldPeers verifies that a peer whose last_seen
// age exceeds PeerStaleAfter is evicted from the table.
func TestEvictStaleRemovesOldPeers(t *testing.T) {
	s := newTestService()
	ip := net.ParseIP("192.0.2.3")
	s.upsert(ip, "stale-host", "linux")

	s.mut.Lock()
	s.peers[ip.String()].LastSeen = time.Now().Add(-config.PeerStaleAfter - time.Second)
	s.mut.Unlock()

	s.evictStale()

	snap := s.Snapshot()
	if len(snap.Peers) != 0 {
		t.Fatalf("expected stale peer to be evicted, got %d peers", len(snap.Peers))
	}
}

// TestEvictStaleKeepsFreshAndManualPeers ensures a recently seen peer
// survives eviction and a manually added peer is never evicted
// regardless of age.
func TestEvictStaleKeepsFreshAndManualPeers(t *testing.T) {
	s := newTestService()

	fresh := net.ParseIP("192.0.2.4")
	s.upsert(fresh, "fresh-host", "linux")

	manual := net.ParseIP("192.0.2.5")
	s.AddManual(manual, "manual-host", "windows")
	s.mut.Lock()
	s.peers[manual.String()].LastSeen = time.Now().Add(-config.PeerStaleAfter - time.Hour)
	s.mut.Unlock()

	s.evictStale()

	snap := s.Snapshot()
	if len(snap.Peers) != 2 {
		t.Fatalf("expected both fresh and manual peers to survive, got %d", len(snap.Peers))
	}
}

// TestListenLoopIgnoresSelf runs listenLoop against a real UDP socket
// and verifies that a datagram whose source IP matches self.IP is
// dropped without being added to the peer table, while a datagram
// from any other address is upserted normally.
func TestListenLoopIgnoresSelf(t *testing.T) {
	self := Self{Hostname: "test-host", Platform: "linux", IP: net.ParseIP("127.0.0.1")}
	s := NewService(self, events.NewBus(), logger.New())

	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(context.Background(), "udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()
	listenAddr := conn.LocalAddr().(*net.UDPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.listenLoop(ctx, conn)

	send := func(fromIP string) {
		t.Helper()
		sender, err := net.DialUDP("udp4",
			&net.UDPAddr{IP: net.ParseIP(fromIP)},
			&net.UDPAddr{IP: listenAddr.IP, Port: listenAddr.Port})
		if err != nil {
			t.Fatal(err)
		}
		defer sender.Close()
		pkt := datagram{Type: typeDiscovery, Hostname: "other", Platform: "linux", IP: fromIP}.encode()
		if _, err := sender.Write(pkt); err != nil {
			t.Fatal(err)
		}
	}

	send("127.0.0.1") // matches self.IP: must be dropped
	time.Sleep(50 * time.Millisecond)
	if snap := s.Snapshot(); len(snap.Peers) != 0 {
		t.Fatalf("expected self-originated datagram to be ignored, got %d peers", len(snap.Peers))
	}

	send("127.0.0.2") // distinct source: must be upserted
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(s.Snapshot().Peers) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if snap := s.Snapshot(); len(snap.Peers) != 1 {
		t.Fatalf("expected exactly 1 peer after a non-self datagram, got %d", len(snap.Peers))
	}
}

func TestBcastComputesHostBitsSet(t *testing.T) {
	_, ipNet, err := net.ParseCIDR("192.168.1.37/24")
	if err != nil {
		t.Fatal(err)
	}
	got := bcast(ipNet, ipNet.IP.To4())
	want := net.IPv4(192, 168, 1, 255).To4()
	if !got.Equal(want) {
		t.Fatalf("bcast() = %v, want %v", got, want)
	}
}

func TestDatagramRoundTrip(t *testing.T) {
	d := datagram{Type: typeDiscovery, Hostname: "h", Platform: "linux", IP: "192.0.2.9"}
	encoded := d.encode()

	decoded, err := decodeDatagram(encoded)
	if err != nil {
		t.Fatalf("decodeDatagram: %v", err)
	}
	if *decoded != d {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *decoded, d)
	}
}

func TestDecodeDatagramRejectsUnknownType(t *testing.T) {
	_, err := decodeDatagram([]byte(`{"type":"BOGUS"}`))
	if err != errUnknownDatagramType {
		t.Fatalf("expected errUnknownDatagramType, got %v", err)
	}
}

func TestDecodeDatagramRejectsGarbage(t *testing.T) {
	if _, err := decodeDatagram([]byte("not json")); err == nil {
		t.Fatal("expected error decoding garbage bytes")
	}
}
