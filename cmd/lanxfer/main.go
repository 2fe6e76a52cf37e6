// Command lanxfer runs the peer-to-peer LAN discovery and transfer
// service: it broadcasts and listens for peers, accepts inbound text,
// file, folder, and parallel-file sessions, and prints a terminal log
// of what happens. A graphical shell is an external collaborator this
// binary does not provide; it stands in with a line-oriented printer.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	"github.com/lanxfer/lanxfer/internal/config"
	"github.com/lanxfer/lanxfer/internal/discovery"
	"github.com/lanxfer/lanxfer/internal/events"
	"github.com/lanxfer/lanxfer/internal/identity"
	"github.com/lanxfer/lanxfer/internal/logger"
	"github.com/lanxfer/lanxfer/internal/transfer"
)

var l = logger.DefaultLogger

// cli is the process bootstrapping surface: none of these flags touch
// wire-protocol behavior — they only choose where files land, whether
// discovery runs, which peers are added by hand, and how chatty the
// logger is.
type cli struct {
	ReceiveDir  string `help:"Directory inbound files and folders are written to." type:"path"`
	NoDiscovery bool   `help:"Disable UDP broadcast discovery; rely on manually added peers only."`
	Iface       string `help:"Network interface name. Accepted but not used: discovery broadcasts on every non-loopback IPv4 interface and listens on all addresses."`
	Verbose     bool   `help:"Raise the logger to debug level." short:"v"`
	Peer        []string `help:"Manually add a peer at startup, ip[=hostname]." sep:","`
}

func main() {
	var c cli
	kong.Parse(&c,
		kong.Name("lanxfer"),
		kong.Description("Peer-to-peer LAN file and message transfer service."),
	)

	if c.Verbose {
		l.SetLevel(logger.LevelDebug)
	}

	receiveDir := c.ReceiveDir
	if receiveDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			l.Fatalln("resolve home directory:", err)
		}
		receiveDir = filepath.Join(home, config.ReceiveAreaName)
	}

	id := identity.Resolve()
	l.Infoln("host:", id.Hostname(), "platform:", id.Platform(), "ip:", id.LocalIP())

	bus := events.NewBus()
	sink := transfer.NewBusSink(bus)

	server, err := transfer.NewServer(receiveDir, sink, l)
	if err != nil {
		l.Fatalln("transfer server:", err)
	}

	disc := discovery.NewService(discovery.Self{
		Hostname: id.Hostname(),
		Platform: id.Platform(),
		IP:       id.LocalIP(),
	}, bus, l)

	for _, spec := range c.Peer {
		ip, hostname := parsePeerFlag(spec)
		if ip == nil {
			l.Warnln("ignoring malformed --peer value:", spec)
			continue
		}
		disc.AddManual(ip, hostname, "unknown")
	}

	sup := suture.NewSimple("lanxfer")
	if !c.NoDiscovery {
		sup.Add(disc)
	}
	sup.Add(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printEvents(ctx, bus)

	l.Okln("lanxfer started; receive area:", receiveDir)
	if err := sup.Serve(ctx); err != nil && ctx.Err() == nil {
		l.Fatalln("supervisor exited:", err)
	}
	l.Okln("lanxfer stopped")
}

// printEvents stands in for the out-of-scope GUI: it subscribes to
// every event and prints a one-line summary, the way a terminal-only
// deployment of this service would surface activity.
func printEvents(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.AllEvents)
	defer bus.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			l.Infof("%s: %+v", ev.Type, ev.Data)
		}
	}
}

// parsePeerFlag parses "ip" or "ip=hostname" into its parts.
func parsePeerFlag(spec string) (net.IP, string) {
	ipPart, hostname := spec, ""
	for i := 0; i < len(spec); i++ {
		if spec[i] == '=' {
			ipPart, hostname = spec[:i], spec[i+1:]
			break
		}
	}
	ip := net.ParseIP(ipPart)
	if ip == nil {
		return nil, ""
	}
	if hostname == "" {
		hostname = fmt.Sprintf("manual-%s", ipPart)
	}
	return ip, hostname
}
