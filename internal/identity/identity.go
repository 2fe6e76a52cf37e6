// Package identity resolves this host's identity (hostname, platform
// label, primary LAN IPv4 address) exactly once at process start and
// exposes it through read-only getters that never block or fail
// thereafter.
package identity

import (
	"context"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/host"
)

// probeAddr is the well-known address used only to let the kernel pick
// a local source address for a UDP socket; nothing is ever sent to it.
const probeAddr = "203.0.113.1:53" // TEST-NET-3, RFC 5737

// Identity is immutable for the lifetime of the process once Resolve
// returns.
type Identity struct {
	hostname string
	platform string
	localIP  net.IP
}

// Resolve gathers hostname, platform label, and primary LAN IPv4
// address. It never returns an error: every probe has a documented
// stdlib fallback so identity resolution cannot abort startup.
func Resolve() *Identity {
	return &Identity{
		hostname: resolveHostname(),
		platform: resolvePlatform(),
		localIP:  resolveLocalIP(),
	}
}

func (id *Identity) Hostname() string { return id.hostname }
func (id *Identity) Platform() string { return id.platform }
func (id *Identity) LocalIP() net.IP  { return id.localIP }

func resolveHostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "unknown-host"
	}
	return name
}

// resolvePlatform asks gopsutil for a descriptive OS/distribution
// string and falls back to the bare runtime.GOOS/GOARCH pair if the
// probe fails (e.g. inside a minimal container without /etc/os-release).
func resolvePlatform() string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	info, err := host.InfoWithContext(ctx)
	if err != nil || info.Platform == "" {
		return runtime.GOOS + "/" + runtime.GOARCH
	}
	label := info.Platform
	if info.PlatformVersion != "" {
		label += " " + info.PlatformVersion
	}
	return label + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

// resolveLocalIP opens a UDP socket "connected" to a well-known
// address without transmitting a packet, then reads the address the
// kernel bound for it — the standard Go idiom for discovering the
// primary outbound interface address without a central broker. On any
// failure it enumerates non-loopback interface addresses (the
// documented fallback for runtimes without the connect-without-send
// idiom) and finally falls back to loopback.
func resolveLocalIP() net.IP {
	conn, err := net.Dial("udp4", probeAddr)
	if err == nil {
		defer conn.Close()
		if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && !addr.IP.IsUnspecified() {
			return addr.IP
		}
	}

	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() {
				continue
			}
			if v4 := ipNet.IP.To4(); v4 != nil {
				return v4
			}
		}
	}

	return net.IPv4(127, 0, 0, 1)
}
