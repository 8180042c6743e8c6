package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"stash/internal/logging"
)

// NetlinkSource follows kernel network events and re-probes interfaces after
// each one. Interface hotplug arrives as udev uevents; link and address
// changes arrive on the rtnetlink route socket.
type NetlinkSource struct {
	logger     *slog.Logger
	interfaces []string
	probe      func() bool

	mu      sync.Mutex
	last    bool
	primed  bool
	running bool
}

// NewNetlinkSource returns a source limited to the named interfaces, or to
// every non-loopback interface when names is empty.
func NewNetlinkSource(names []string, logger *slog.Logger) *NetlinkSource {
	s := &NetlinkSource{
		logger:     logging.NewComponentLogger(logger, "netlink-source"),
		interfaces: slices.Clone(names),
	}
	s.probe = s.probeInterfaces
	return s
}

// Online probes the host's interfaces.
func (s *NetlinkSource) Online() bool {
	if s == nil {
		return false
	}
	return s.probe()
}

// Running reports whether Run is active.
func (s *NetlinkSource) Running() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Run listens until ctx is done. It fails only if no event channel can be opened.
func (s *NetlinkSource) Run(ctx context.Context, emit func(bool)) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("netlink source already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.prime()
	events := make(chan struct{}, 1)
	notify := func() {
		select {
		case events <- struct{}{}:
		default:
		}
	}

	udevErr := s.watchUEvents(ctx, notify)
	routeErr := watchRoutes(ctx, notify)
	if udevErr != nil && routeErr != nil {
		return fmt.Errorf("connect netlink: %w; %w", udevErr, routeErr)
	}
	if udevErr != nil {
		s.warnPartial("udev", udevErr)
	}
	if routeErr != nil {
		s.warnPartial("route", routeErr)
	}

	s.logger.Info("netlink source started",
		logging.String(logging.FieldEventType, "netlink_source_started"),
		logging.Bool(logging.FieldOnline, s.lastState()),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("netlink source stopped",
				logging.String(logging.FieldEventType, "netlink_source_stopped"),
			)
			return nil
		case <-events:
			s.evaluate(emit)
		}
	}
}

func (s *NetlinkSource) warnPartial(channel string, err error) {
	logging.WarnWithContext(s.logger, "netlink channel unavailable", "netlink_connect_failed",
		logging.String("channel", channel),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
		logging.String(logging.FieldImpact, "some connectivity changes may go unnoticed"),
	)
}

func (s *NetlinkSource) watchUEvents(ctx context.Context, notify func()) error {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return err
	}
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, buildMatcher())

	go func() {
		defer func() { _ = conn.Close() }()
		for {
			select {
			case <-ctx.Done():
				close(quit)
				return
			case uevent := <-queue:
				s.logger.Debug("network uevent",
					logging.String("action", string(uevent.Action)),
					logging.String("interface", uevent.Env["INTERFACE"]),
				)
				notify()
			case err := <-errs:
				logging.WarnWithContext(s.logger, "netlink monitor error", "netlink_monitor_error",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
					logging.String(logging.FieldImpact, "connectivity changes may be missed"),
				)
			}
		}
	}()
	return nil
}

// buildMatcher accepts every uevent from the net subsystem.
func buildMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"SUBSYSTEM": "^net$"},
	})
	return rules
}

func (s *NetlinkSource) prime() {
	state := s.probe()
	s.mu.Lock()
	s.last = state
	s.primed = true
	s.mu.Unlock()
}

func (s *NetlinkSource) lastState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// evaluate re-probes and emits only when the state flipped.
func (s *NetlinkSource) evaluate(emit func(bool)) {
	state := s.probe()
	s.mu.Lock()
	changed := !s.primed || state != s.last
	s.last = state
	s.primed = true
	s.mu.Unlock()
	if !changed {
		return
	}
	s.logger.Info("connectivity edge",
		logging.String(logging.FieldEventType, "connectivity_edge"),
		logging.Bool(logging.FieldOnline, state),
	)
	if emit != nil {
		emit(state)
	}
}

type ifaceState struct {
	name  string
	flags net.Flags
	addrs []net.Addr
}

func (s *NetlinkSource) probeInterfaces() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		s.logger.Debug("interface listing failed", logging.Error(err))
		return false
	}
	states := make([]ifaceState, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		states = append(states, ifaceState{name: iface.Name, flags: iface.Flags, addrs: addrs})
	}
	return anyUsable(states, s.interfaces)
}

// anyUsable reports whether some interface is up, running, not loopback, and
// holds a global unicast address. A non-empty filter restricts the candidates.
func anyUsable(states []ifaceState, filter []string) bool {
	for _, st := range states {
		if len(filter) > 0 && !slices.Contains(filter, st.name) {
			continue
		}
		if st.flags&net.FlagLoopback != 0 {
			continue
		}
		if st.flags&net.FlagUp == 0 || st.flags&net.FlagRunning == 0 {
			continue
		}
		for _, addr := range st.addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}
