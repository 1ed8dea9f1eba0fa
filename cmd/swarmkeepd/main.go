// Command swarmkeepd is the tracker's entrypoint: it owns exactly the
// external-collaborator responsibilities spec §1 carves out of the core —
// CLI flag and config-file parsing, chroot/privilege drop, signal
// plumbing, and the cold-load state/accesslist file readers — and wires
// their output into the access, storage, stats, livesync, service, and
// frontend packages that implement the actual tracker. Grounded on the
// teacher's cmd/trakr/main.go (cobra root command, YAML config file,
// signal-driven shutdown) and cmd/chihaya/main.go.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/swarmkeep/swarmkeep/access"
	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/config"
	"github.com/swarmkeep/swarmkeep/eventloop"
	"github.com/swarmkeep/swarmkeep/frontend/http"
	"github.com/swarmkeep/swarmkeep/frontend/udp"
	"github.com/swarmkeep/swarmkeep/livesync"
	"github.com/swarmkeep/swarmkeep/pkg/clock"
	"github.com/swarmkeep/swarmkeep/pkg/log"
	"github.com/swarmkeep/swarmkeep/service"
	"github.com/swarmkeep/swarmkeep/stats"
	"github.com/swarmkeep/swarmkeep/storage"
)

const version = "swarmkeepd 1.0.0"

// listenAccum builds Flags.Listen from "-i"/"-p"/"-P" in the order they
// appear on the command line; pflag dispatches flag.Value.Set calls in
// argv order regardless of flag identity, so a "-p" always lands on
// whichever "-i" preceded it, matching spec §6's "-p must follow an -i".
type listenAccum struct {
	out *[]config.ListenAddr
}

func (a listenAccum) String() string { return "" }
func (a listenAccum) Type() string   { return "listenAccum" }

type ipFlag struct{ listenAccum }

func (f ipFlag) Set(s string) error {
	ip := net.ParseIP(s)
	if ip == nil {
		return fmt.Errorf("invalid -i address %q", s)
	}
	*f.out = append(*f.out, config.ListenAddr{IP: ip})
	return nil
}

type tcpPortFlag struct{ listenAccum }

func (f tcpPortFlag) Set(s string) error {
	if len(*f.out) == 0 {
		return fmt.Errorf("-p %s must follow an -i", s)
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid -p port %q: %w", s, err)
	}
	last := len(*f.out) - 1
	(*f.out)[last].TCPPorts = append((*f.out)[last].TCPPorts, port)
	return nil
}

type udpPortFlag struct{ listenAccum }

func (f udpPortFlag) Set(s string) error {
	if len(*f.out) == 0 {
		return fmt.Errorf("-P %s must follow an -i", s)
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid -P port %q: %w", s, err)
	}
	(*f.out)[len(*f.out)-1].UDPPort = port
	return nil
}

func main() {
	log.SetFatalExitCode(config.ExitFatalError)

	flags := config.Flags{}
	var debug bool

	root := &cobra.Command{
		Use:           "swarmkeepd",
		Short:         "BitTorrent tracker",
		Long:          "swarmkeepd is a BitTorrent tracker core: HTTP and UDP announce/scrape over an in-memory peer store.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetDebug(debug)
			return run(flags)
		},
	}
	root.SetVersionTemplate(version + "\n")

	fl := root.Flags()
	fl.VarP(ipFlag{listenAccum{&flags.Listen}}, "bind", "i", "bind address (repeatable, precedes -p/-P)")
	fl.VarP(tcpPortFlag{listenAccum{&flags.Listen}}, "tcp-port", "p", "TCP listen port (repeatable, must follow -i)")
	fl.VarP(udpPortFlag{listenAccum{&flags.Listen}}, "udp-port", "P", "UDP listen port (must follow -i)")
	fl.StringVarP(&flags.RedirectURL, "redirect", "r", "", "redirect target for GET /")
	fl.StringVarP(&flags.RootDir, "chroot", "d", "", "root directory to chroot into at startup")
	fl.StringArrayVarP(&flags.AdminIPs, "admin", "A", nil, "grant admin permissions to an IP (repeatable)")
	fl.StringVarP(&flags.ConfigFile, "config", "f", "", "path to a YAML config file")
	fl.StringVarP(&flags.Blacklist, "blacklist", "b", "", "infohash blacklist file")
	fl.StringVarP(&flags.Whitelist, "whitelist", "w", "", "infohash whitelist file")
	fl.IntVarP(&flags.LiveSyncUDP, "livesync-port", "s", 0, "live-sync multicast UDP port")
	fl.StringVarP(&flags.StateFile, "load-state", "l", "", "cold-load saved swarm state file")
	fl.BoolVar(&debug, "debug", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		if _, ok := err.(usageError); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(config.ExitUsageError)
		}
		log.Fatal("swarmkeepd: fatal error", log.Fields{"err": err.Error()})
	}
}

// usageError marks an error that should exit with config.ExitUsageError
// instead of config.ExitFatalError.
type usageError struct{ error }

func run(flags config.Flags) error {
	var fileCfg *config.FileConfig
	if flags.ConfigFile != "" {
		fc, err := config.ParseFile(flags.ConfigFile)
		if err != nil {
			return usageError{fmt.Errorf("reading config file: %w", err)}
		}
		fileCfg = fc
	}

	resolved, err := config.Resolve(flags, fileCfg)
	if err != nil {
		return usageError{err}
	}

	if resolved.RootDir != "" {
		if err := chroot(resolved.RootDir); err != nil {
			log.Warn("swarmkeepd: chroot failed, continuing unconfined", log.Fields{"dir": resolved.RootDir, "err": err.Error()})
		}
	}

	perms := access.NewIPPermissions()
	for _, ip := range resolved.AdminIPs {
		perms.Grant(ip, access.Admin)
	}
	if resolved.StatsEnabled {
		perms.Grant("", access.MayStat)
	}
	if resolved.ProxyTrusted {
		perms.Grant("", access.MayProxy)
	}

	accessList := access.NewList(resolved.AccessMode)
	if resolved.AccessListPath != "" && resolved.AccessMode != access.Disabled {
		f, err := os.Open(resolved.AccessListPath)
		if err != nil {
			return fmt.Errorf("opening accesslist %s: %w", resolved.AccessListPath, err)
		}
		err = accessList.Load(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("loading accesslist %s: %w", resolved.AccessListPath, err)
		}
		log.Info("swarmkeepd: accesslist loaded", log.Fields{
			"path":    resolved.AccessListPath,
			"mode":    accessList.Mode(),
			"entries": accessList.Len(),
			"skipped": accessList.SkippedLines.Load(),
		})
	}

	clk := clock.New()
	defer clk.Stop()

	store := storage.New(storage.Config{GCInterval: 0}, clk)

	if resolved.StateFilePath != "" {
		if err := loadStateFile(resolved.StateFilePath, store); err != nil {
			log.Warn("swarmkeepd: cold-load state file skipped", log.Fields{"path": resolved.StateFilePath, "err": err.Error()})
		}
	}

	st := stats.New(false)

	var syncer *livesync.Syncer
	if resolved.LiveSyncListen != "" {
		var iface *net.Interface
		if resolved.LiveSyncNodeIP != "" {
			if i, err := interfaceForIP(resolved.LiveSyncNodeIP); err == nil {
				iface = i
			} else {
				log.Warn("swarmkeepd: could not resolve livesync.cluster.node_ip to an interface", log.Fields{"ip": resolved.LiveSyncNodeIP, "err": err.Error()})
			}
		}
		perms.Grant("", access.MayLiveSync)
		s, err := livesync.New(livesync.Config{
			TrackerID:  trackerID(),
			ListenAddr: resolved.LiveSyncListen,
			Interface:  iface,
		}, store, perms)
		if err != nil {
			log.Warn("swarmkeepd: live-sync disabled, failed to join multicast group", log.Fields{"err": err.Error()})
		} else {
			syncer = s
		}
	}

	sanitizer := &bittorrent.RequestSanitizer{MaxNumWant: 200, DefaultNumWant: 50, MaxScrapeInfoHashes: 64}
	logic := service.New(service.Config{
		AnnounceInterval:    30 * time.Minute,
		MinAnnounceInterval: 5 * time.Minute,
	}, store, st, accessList, perms, syncer, sanitizer)

	loop := eventloop.New(clk, store, 0)

	httpSrv := http.NewServer(http.Config{TrustedForwardFor: resolved.ProxyTrusted, RedirectURL: resolved.RedirectURL, StatsPath: resolved.StatsPath}, logic, perms, st)
	for _, addr := range resolved.TCPListen {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("binding TCP %s: %w", addr, err)
		}
		ln := ln
		ctx, cancel := context.WithCancel(context.Background())
		loop.ManageNamed("http:"+addr, func() <-chan error {
			cancel()
			done := make(chan error, 1)
			close(done)
			return done
		})
		go func() {
			if err := httpSrv.Serve(ctx, ln); err != nil {
				log.Error("swarmkeepd: http server stopped", log.Fields{"addr": addr, "err": err.Error()})
			}
		}()
		log.Info("swarmkeepd: http listening", log.Fields{"addr": addr})
	}

	if resolved.UDPListen != "" {
		udpSrv, err := udp.NewServer(udp.Config{Addr: resolved.UDPListen}, logic)
		if err != nil {
			return fmt.Errorf("binding UDP %s: %w", resolved.UDPListen, err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		loop.ManageNamed("udp:"+resolved.UDPListen, func() <-chan error {
			cancel()
			done := make(chan error, 1)
			go func() {
				done <- udpSrv.Stop()
				close(done)
			}()
			return done
		})
		go func() {
			if err := udpSrv.Serve(ctx); err != nil {
				log.Error("swarmkeepd: udp server stopped", log.Fields{"addr": resolved.UDPListen, "err": err.Error()})
			}
		}()
		log.Info("swarmkeepd: udp listening", log.Fields{"addr": resolved.UDPListen})
	}

	if syncer != nil {
		loop.ManageNamed("livesync", func() <-chan error {
			done := make(chan error, 1)
			go func() {
				done <- syncer.Stop()
				close(done)
			}()
			return done
		})
	}

	loop.Run(context.Background())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)
	<-shutdown

	log.Info("swarmkeepd: shutting down", nil)
	for _, err := range loop.Stop() {
		log.Error("swarmkeepd: shutdown error", log.Fields{"err": err.Error()})
	}
	return nil
}

// chroot drops the process into dir, per spec §6's "-d <dir>". It is a
// best-effort, Linux-only operation requiring the caller to already hold
// CAP_SYS_CHROOT; failures are logged and the process continues unconfined
// rather than refusing to start, since chroot is explicitly out of the
// core's scope (spec §1).
func chroot(dir string) error {
	if err := syscall.Chroot(dir); err != nil {
		return err
	}
	return os.Chdir("/")
}

// loadStateFile reads the optional cold-load swarm state file (spec §6):
// one "<40 hex infohash>:<seed_count_hint>:<downloaded>" record per line.
// Unparseable lines are skipped, matching the permissive-input behavior
// spec §9 asks for elsewhere in the config surface.
func loadStateFile(path string, store *storage.PeerStore) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var loaded, skipped int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			skipped++
			continue
		}
		hexPart := strings.TrimSpace(parts[0])
		decoded := make([]byte, hex.DecodedLen(len(hexPart)))
		n, err := hex.Decode(decoded, []byte(hexPart))
		if err != nil || n != 20 {
			skipped++
			continue
		}
		ih := bittorrent.InfoHashFromBytes(decoded[:20])
		if _, err := strconv.ParseUint(parts[1], 10, 32); err != nil {
			// seed_count_hint is advisory only (no live peers to attach it
			// to without a real announce) but still validated, so a
			// corrupt line doesn't silently seed the wrong downloaded count.
			skipped++
			continue
		}
		downloaded, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			skipped++
			continue
		}
		store.SeedDownloaded(ih, downloaded)
		loaded++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	log.Info("swarmkeepd: cold-load complete", log.Fields{"path": path, "loaded": loaded, "skipped": skipped})
	return nil
}

// interfaceForIP finds the local network interface carrying ip, for
// binding the live-sync multicast socket to livesync.cluster.node_ip.
func interfaceForIP(ip string) (*net.Interface, error) {
	want := net.ParseIP(ip)
	if want == nil {
		return nil, fmt.Errorf("invalid node_ip %q", ip)
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			var ifIP net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ifIP = v.IP
			case *net.IPAddr:
				ifIP = v.IP
			}
			if ifIP.Equal(want) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no local interface holds %s", ip)
}

func trackerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "swarmkeepd"
	}
	return host
}

var _ pflag.Value = ipFlag{}
