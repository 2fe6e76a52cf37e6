// Package discovery implements the UDP broadcast/listen/liveness
// protocol that populates and ages the peer table.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/events"
	"github.com/lanxfer/lanxfer/internal/logger"
)

// Self describes the identity this service announces; it is a narrow
// view of identity.Identity so this package does not import it
// directly and stays independently testable.
type Self struct {
	Hostname string
	Platform string
	IP       net.IP
}

// Service owns the UDP socket and the peer table for the lifetime of
// the process. It implements suture.Service (Serve(ctx) error) so
// cmd/lanxfer can run it under a supervisor.
type Service struct {
	self Self
	bus  *events.Bus
	log  *logger.Logger

	mut   sync.RWMutex
	peers map[string]*Peer

	manualMut sync.Mutex
	manual    map[string]struct{}
}

func NewService(self Self, bus *events.Bus, log *logger.Logger) *Service {
	return &Service{
		self:   self,
		bus:    bus,
		log:    log,
		peers:  make(map[string]*Peer),
		manual: make(map[string]struct{}),
	}
}

// AddManual registers a peer that was added by hand rather than
// discovered over UDP, so transfers keep working with manually added
// peers even if the discovery socket never bound. Manual peers are
// never evicted by staleness.
func (s *Service) AddManual(ip net.IP, hostname, platform string) {
	key := ip.String()
	s.manualMut.Lock()
	s.manual[key] = struct{}{}
	s.manualMut.Unlock()

	s.mut.Lock()
	s.peers[key] = &Peer{
		IP:       append(net.IP(nil), ip...),
		Hostname: hostname,
		Platform: platform,
		LastSeen: time.Now(),
	}
	s.mut.Unlock()
	s.publish()
}

// Snapshot returns an immutable copy of the current peer table.
func (s *Service) Snapshot() Snapshot {
	s.mut.RLock()
	defer s.mut.RUnlock()
	peers := make([]Peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p.clone())
	}
	return Snapshot{Peers: peers, At: time.Now()}
}

func (s *Service) publish() {
	s.bus.Log(events.PeerTableChanged, s.Snapshot())
}

// Serve runs the broadcast, listen, and liveness loops until ctx is
// canceled. A UDP bind failure is fatal to discovery only: Serve logs
// it, publishes a status event, and then blocks until ctx is canceled
// before returning the error, so the supervisor does not restart it;
// the rest of the process continues with manually added peers.
func (s *Service) Serve(ctx context.Context) error {
	lc := net.ListenConfig{Control: controlReuseAddr}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", config.DiscoveryPort))
	if err != nil {
		s.log.Warnln("discovery: bind failed, continuing with manually added peers only:", err)
		s.bus.Log(events.StatusChanged, "discovery unavailable: "+err.Error())
		<-ctx.Done()
		return err
	}
	conn := pc.(*net.UDPConn)
	defer conn.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.broadcastLoop(ctx, conn) }()
	go func() { defer wg.Done(); s.listenLoop(ctx, conn) }()
	go func() { defer wg.Done(); s.livenessLoop(ctx, conn) }()

	<-ctx.Done()
	conn.Close()
	wg.Wait()
	return ctx.Err()
}

// broadcastLoop sends a PCPCS_DISCOVERY datagram to the subnet
// broadcast address every BroadcastInterval.
func (s *Service) broadcastLoop(ctx context.Context, conn *net.UDPConn) {
	ticker := time.NewTicker(config.BroadcastInterval)
	defer ticker.Stop()

	for {
		s.announce(conn, typeDiscovery)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) announce(conn *net.UDPConn, t datagramType) {
	pkt := datagram{
		Type:     t,
		Hostname: s.self.Hostname,
		Platform: s.self.Platform,
		IP:       s.self.IP.String(),
	}.encode()

	dsts := directedBroadcastAddrs()
	if len(dsts) == 0 {
		dsts = []net.IP{net.IPv4(255, 255, 255, 255)}
	}
	for _, ip := range dsts {
		addr := &net.UDPAddr{IP: ip, Port: config.DiscoveryPort}
		if _, err := conn.WriteToUDP(pkt, addr); err != nil {
			s.log.Warnln("discovery: broadcast to", addr, "failed:", err)
		}
	}
}

// listenLoop receives discovery and response datagrams: self-filtering,
// parse-failure silent drop, upsert with reply-once-on-first-sight, and
// last_seen refresh.
func (s *Service) listenLoop(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return
		}

		udpAddr, ok := addr.(*net.UDPAddr)
		if !ok || udpAddr.IP.Equal(s.self.IP) {
			continue
		}

		pkt, err := decodeDatagram(buf[:n])
		if err != nil {
			// malformed discovery datagram: drop silently
			continue
		}

		isNew := s.upsert(udpAddr.IP, pkt.Hostname, pkt.Platform)

		if isNew && pkt.Type == typeDiscovery {
			s.announceTo(conn, udpAddr)
		}
	}
}

func (s *Service) announceTo(conn *net.UDPConn, addr *net.UDPAddr) {
	pkt := datagram{
		Type:     typeResponse,
		Hostname: s.self.Hostname,
		Platform: s.self.Platform,
		IP:       s.self.IP.String(),
	}.encode()
	if _, err := conn.WriteToUDP(pkt, addr); err != nil {
		s.log.Warnln("discovery: unicast response to", addr, "failed:", err)
	}
}

// upsert inserts or refreshes a peer entry and reports whether the
// peer was previously unseen.
func (s *Service) upsert(ip net.IP, hostname, platform string) bool {
	key := ip.String()

	s.mut.Lock()
	p, existed := s.peers[key]
	if !existed {
		p = &Peer{IP: append(net.IP(nil), ip...)}
		s.peers[key] = p
	}
	p.Hostname = hostname
	p.Platform = platform
	p.LastSeen = time.Now()
	s.mut.Unlock()

	s.publish()
	return !existed
}

// livenessLoop probes every known peer every LivenessInterval and
// evicts entries stale for longer than PeerStaleAfter. The probe is an
// application-layer discovery datagram sent by unicast with a bounded
// wait for a response, avoiding any dependency on ICMP or a shelled-out
// ping binary.
func (s *Service) livenessLoop(ctx context.Context, conn *net.UDPConn) {
	ticker := time.NewTicker(config.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.probeAll(conn)
		s.evictStale()
	}
}

func (s *Service) probeAll(conn *net.UDPConn) {
	for _, ip := range s.peerIPs() {
		rtt, ok := s.probeOne(conn, ip)
		s.mut.Lock()
		if p, present := s.peers[ip.String()]; present {
			p.Reachable = ok
			if ok {
				ms := float64(rtt) / float64(time.Millisecond)
				p.LastPingMS = &ms
			}
		}
		s.mut.Unlock()
	}
	s.publish()
}

func (s *Service) peerIPs() []net.IP {
	s.mut.RLock()
	defer s.mut.RUnlock()
	ips := make([]net.IP, 0, len(s.peers))
	for _, p := range s.peers {
		ips = append(ips, p.IP)
	}
	return ips
}

// probeOne sends a discovery datagram to ip and waits up to
// LivenessTimeout for any reply from that address, using a private
// socket so the shared listen socket's read loop is undisturbed.
func (s *Service) probeOne(_ *net.UDPConn, ip net.IP) (time.Duration, bool) {
	probe, err := net.Dial("udp4", net.JoinHostPort(ip.String(), strconv.Itoa(config.DiscoveryPort)))
	if err != nil {
		return 0, false
	}
	defer probe.Close()

	pkt := datagram{
		Type:     typeDiscovery,
		Hostname: s.self.Hostname,
		Platform: s.self.Platform,
		IP:       s.self.IP.String(),
	}.encode()

	start := time.Now()
	if _, err := probe.Write(pkt); err != nil {
		return 0, false
	}

	probe.SetReadDeadline(start.Add(config.LivenessTimeout))
	buf := make([]byte, 1024)
	n, err := probe.Read(buf)
	if err != nil {
		return 0, false
	}
	var reply struct {
		Type datagramType `json:"type"`
	}
	if json.Unmarshal(buf[:n], &reply) != nil {
		return 0, false
	}
	return time.Since(start), true
}

// evictStale removes peers whose last_seen age exceeds PeerStaleAfter,
// skipping manually added peers.
func (s *Service) evictStale() {
	now := time.Now()
	changed := false

	s.manualMut.Lock()
	manual := make(map[string]struct{}, len(s.manual))
	for k := range s.manual {
		manual[k] = struct{}{}
	}
	s.manualMut.Unlock()

	s.mut.Lock()
	for key, p := range s.peers {
		if _, isManual := manual[key]; isManual {
			continue
		}
		if now.Sub(p.LastSeen) > config.PeerStaleAfter {
			delete(s.peers, key)
			changed = true
		}
	}
	s.mut.Unlock()

	if changed {
		s.publish()
	}
}
