// Package config resolves the tracker's external interface: the CLI flags
// (spec §6) layered over an optional YAML config file, grounded on the
// teacher's cmd/trakr ConfigFile (cobra + gopkg.in/yaml.v2, ParseConfigFile
// with os.ExpandEnv) and cmd/chihaya/config.go's nested-directive YAML
// shape. Flags take precedence over the file; the file supplies anything a
// flag didn't set.
package config

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/swarmkeep/swarmkeep/access"
)

// ExitUsageError and ExitFatalError are the process exit codes named by
// spec §6; ExitOK is implicit (0) on a clean shutdown.
const (
	ExitOK         = 0
	ExitUsageError = 1
	ExitFatalError = 111
)

// DefaultLiveSyncGroup is the multicast group address used when "-s <port>"
// is given without a config-file livesync.cluster.listen directive to
// supply a host part.
const DefaultLiveSyncGroup = "239.192.0.1"

// ListenAddr pairs a bind IP with the TCP and/or UDP ports opened on it,
// modeling the CLI's repeatable "-i <ip>" followed by one or more
// "-p <port>"/"-P <port>" flags (spec §6) as a single directive rather
// than chihaya-chihaya's parallel-flag-list idiom, since a Go flag package
// can't express "must follow a -i" positionally as cleanly as a struct
// slice can.
type ListenAddr struct {
	IP       net.IP
	TCPPorts []int
	UDPPort  int
}

// FileConfig mirrors the "-f <file>" YAML directive set from spec §6. It
// is intentionally flat at the "access"/"tracker"/"livesync" top-level
// keys named there rather than a single nested "swarmkeep:" document,
// since spec §6 names the directives as "listen.tcp" etc. rather than a
// wrapping document key the way the teacher's trakr.yaml does.
type FileConfig struct {
	Listen struct {
		TCP    []string `yaml:"tcp"`
		UDP    string   `yaml:"udp"`
		TCPUDP string   `yaml:"tcp_udp"`
	} `yaml:"listen"`

	Tracker struct {
		RootDir     string `yaml:"rootdir"`
		RedirectURL string `yaml:"redirect_url"`
	} `yaml:"tracker"`

	Access struct {
		Whitelist string `yaml:"whitelist"`
		Blacklist string `yaml:"blacklist"`
		Stats     bool   `yaml:"stats"`
		StatsPath string `yaml:"stats_path"`
		Proxy     bool   `yaml:"proxy"`
	} `yaml:"access"`

	LiveSync struct {
		Cluster struct {
			Listen string `yaml:"listen"`
			NodeIP string `yaml:"node_ip"`
		} `yaml:"cluster"`
	} `yaml:"livesync"`
}

// ParseFile reads and unmarshals a YAML config file at path, expanding
// environment variables in the path itself (matching the teacher's
// ParseConfigFile).
func ParseFile(path string) (*FileConfig, error) {
	if path == "" {
		return nil, errors.New("config: no file path given")
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	contents, err := ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	var fc FileConfig
	if err := yaml.Unmarshal(contents, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &fc, nil
}

// Flags holds the parsed CLI surface named by spec §6, before it is
// reconciled with an optional config file into a Resolved.
type Flags struct {
	Listen      []ListenAddr
	RedirectURL string
	RootDir     string
	AdminIPs    []string
	ConfigFile  string
	Blacklist   string
	Whitelist   string
	LiveSyncUDP int
	StateFile   string
	Version     bool
}

// Resolved is the fully reconciled configuration the rest of the process
// is built from: CLI flags win over the config file field-by-field, per
// directive, rather than one replacing the other wholesale. TCP listen
// addresses are the exception: those from the file and from -i/-p are
// combined.
type Resolved struct {
	TCPListen   []string
	UDPListen   string
	RootDir     string
	RedirectURL string

	AccessMode      access.Mode
	AccessListPath  string
	StatsEnabled    bool
	StatsPath       string
	ProxyTrusted    bool
	AdminIPs        []string

	LiveSyncListen string
	LiveSyncNodeIP string

	StateFilePath string
}

// ErrMutuallyExclusiveLists is returned when both a whitelist and a
// blacklist are configured; spec §6 requires exactly one or neither.
var ErrMutuallyExclusiveLists = errors.New("config: whitelist and blacklist are mutually exclusive")

// Resolve merges CLI flags over an optional file config (file may be nil
// if "-f" was not given) into one Resolved value, validating the
// blacklist/whitelist mutual exclusion spec §6 requires at build time.
func Resolve(flags Flags, file *FileConfig) (*Resolved, error) {
	r := &Resolved{}

	if file != nil {
		r.TCPListen = append(r.TCPListen, file.Listen.TCP...)
		r.UDPListen = file.Listen.UDP
		r.RootDir = file.Tracker.RootDir
		r.RedirectURL = file.Tracker.RedirectURL
		r.StatsEnabled = file.Access.Stats
		r.StatsPath = file.Access.StatsPath
		r.ProxyTrusted = file.Access.Proxy
		r.LiveSyncListen = file.LiveSync.Cluster.Listen
		r.LiveSyncNodeIP = file.LiveSync.Cluster.NodeIP

		switch {
		case file.Access.Whitelist != "" && file.Access.Blacklist != "":
			return nil, ErrMutuallyExclusiveLists
		case file.Access.Whitelist != "":
			r.AccessMode = access.Whitelist
			r.AccessListPath = file.Access.Whitelist
		case file.Access.Blacklist != "":
			r.AccessMode = access.Blacklist
			r.AccessListPath = file.Access.Blacklist
		}
	}

	for _, l := range flags.Listen {
		for _, p := range l.TCPPorts {
			r.TCPListen = append(r.TCPListen, fmt.Sprintf("%s:%d", l.IP, p))
		}
		if l.UDPPort != 0 {
			r.UDPListen = fmt.Sprintf("%s:%d", l.IP, l.UDPPort)
		}
	}
	if flags.RedirectURL != "" {
		r.RedirectURL = flags.RedirectURL
	}
	if flags.RootDir != "" {
		r.RootDir = flags.RootDir
	}
	r.AdminIPs = append(r.AdminIPs, flags.AdminIPs...)

	if flags.Whitelist != "" && flags.Blacklist != "" {
		return nil, ErrMutuallyExclusiveLists
	}
	if flags.Whitelist != "" {
		r.AccessMode = access.Whitelist
		r.AccessListPath = flags.Whitelist
	} else if flags.Blacklist != "" {
		r.AccessMode = access.Blacklist
		r.AccessListPath = flags.Blacklist
	}

	if flags.StateFile != "" {
		r.StateFilePath = flags.StateFile
	}

	// "-s <port>" (spec §6) only names a port; the multicast group address
	// itself comes from the config file's livesync.cluster.listen directive
	// when present, defaulting to DefaultLiveSyncGroup otherwise.
	if flags.LiveSyncUDP != 0 {
		host := DefaultLiveSyncGroup
		if r.LiveSyncListen != "" {
			if h, _, err := net.SplitHostPort(r.LiveSyncListen); err == nil && h != "" {
				host = h
			}
		}
		r.LiveSyncListen = fmt.Sprintf("%s:%d", host, flags.LiveSyncUDP)
	}

	if len(r.TCPListen) == 0 && r.UDPListen == "" {
		return nil, errors.New("config: no listen address configured (need -p, -P, or a config file)")
	}

	return r, nil
}
