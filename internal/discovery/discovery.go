// Package discovery implements the LAN discovery protocol of
// spec.md §4.2: a broadcast UDP probe followed by unicast JSON
// replies, with no persistent state on either side.
package discovery

import (
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/easyshare-go/easyshare/internal/logger"
	"github.com/easyshare-go/easyshare/pkg/protocol"
)

// DefaultPort is the discover port both sides default to (spec.md §6).
const DefaultPort = 12021

// DefaultScanWindow is the scanner's default wait window (spec.md §4.2).
const DefaultScanWindow = 2 * time.Second

const probeSize = 4

// DescriptorFunc produces a fresh ServerDescriptor snapshot for each
// incoming probe, so a daemon always advertises the current sharings
// list.
type DescriptorFunc func() protocol.ServerDescriptor

// Daemon listens for broadcast probes and replies unicast with a
// ServerDescriptor. It is not started when the configured port is 0.
type Daemon struct {
	log      *logger.Logger
	conn     *net.UDPConn
	describe DescriptorFunc
}

// NewDaemon binds UDP on port. Returns (nil, nil) if port == 0, per
// the "disabled" convention in spec.md §4.2.
func NewDaemon(port int, describe DescriptorFunc, log *logger.Logger) (*Daemon, error) {
	if port == 0 {
		return nil, nil
	}

	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}

	return &Daemon{log: log, conn: conn, describe: describe}, nil
}

// Serve loops reading probe datagrams until the connection is closed
// (by Close, which ServerDaemon.Stop calls on shutdown).
func (d *Daemon) Serve() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < probeSize {
			continue
		}
		go d.reply(addr)
	}
}

func (d *Daemon) reply(addr *net.UDPAddr) {
	desc := d.describe()

	payload, err := json.Marshal(desc)
	if err != nil {
		d.log.Warn("discovery: marshal descriptor: %v", err)
		return
	}

	if _, err := d.conn.WriteToUDP(payload, addr); err != nil {
		d.log.Debug("discovery: reply to %s failed: %v", addr, err)
	}
}

func (d *Daemon) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Scan broadcasts one probe datagram and returns every distinct
// ServerDescriptor received within window, deduplicated by
// (address, control_port). Malformed replies are dropped silently, per
// §4.2's best-effort failure semantics.
func Scan(port int, window time.Duration, log *logger.Logger) ([]protocol.ServerDescriptor, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: port}

	probe := []byte{0x45, 0x53, 0x53, 0x43} // arbitrary correlation bytes ("ESSC")
	if _, err := conn.WriteToUDP(probe, broadcastAddr); err != nil {
		return nil, err
	}

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []protocol.ServerDescriptor

	buf := make([]byte, 65535)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline exceeded ends the scan; any other error is
			// also treated as end-of-window, per the best-effort
			// contract in spec.md §4.2.
			return out, nil
		}

		var desc protocol.ServerDescriptor
		if err := json.Unmarshal(buf[:n], &desc); err != nil {
			if log != nil {
				log.Debug("discovery: dropping malformed reply: %v", err)
			}
			continue
		}

		key := net.JoinHostPort(desc.Address, strconv.Itoa(desc.Port))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, desc)
	}
}

// ScanStream is the streaming counterpart of Scan: it broadcasts one
// probe and yields each distinct descriptor on the returned channel as
// it arrives, closing the channel when window elapses. This models the
// "lazy finite sequence" scanner semantics of spec.md §4.2 for a
// caller that wants to render results as they come in rather than
// waiting for the whole window.
func ScanStream(port int, window time.Duration, log *logger.Logger) (<-chan protocol.ServerDescriptor, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}

	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	probe := []byte{0x45, 0x53, 0x53, 0x43}
	if _, err := conn.WriteToUDP(probe, broadcastAddr); err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		conn.Close()
		return nil, err
	}

	out := make(chan protocol.ServerDescriptor)
	go func() {
		defer close(out)
		defer conn.Close()

		seen := make(map[string]bool)
		buf := make([]byte, 65535)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}

			var desc protocol.ServerDescriptor
			if err := json.Unmarshal(buf[:n], &desc); err != nil {
				if log != nil {
					log.Debug("discovery: dropping malformed reply: %v", err)
				}
				continue
			}

			key := net.JoinHostPort(desc.Address, strconv.Itoa(desc.Port))
			if seen[key] {
				continue
			}
			seen[key] = true
			out <- desc
		}
	}()
	return out, nil
}
