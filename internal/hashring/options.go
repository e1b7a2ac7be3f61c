package hashring

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const DefaultPort = 11211

var ErrInvalidOptions = errors.New("hashring: invalid options")

// Distribution selects how hashed keys map to hosts.
type Distribution int

const (
	DistributionConsistent Distribution = iota
	DistributionModula
)

func (d Distribution) String() string {
	if d == DistributionModula {
		return "modula"
	}
	return "consistent"
}

// Host is one configured cache server.
type Host struct {
	Address string
	Port    int
	Weight  int
}

func (h Host) String() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// Options is a parsed connection string.
type Options struct {
	Hosts          []Host
	Distribution   Distribution
	Hash           Algorithm
	ConnectTimeout time.Duration
	MaxIdleConns   int
}

// Parse reads a libmemcached style connection string such as
//
//	--SERVER=cache1:11211/?2 --SERVER=cache2 --DISTRIBUTION=consistent --HASH=md5
//
// Unknown options are rejected.
func Parse(conn string) (Options, error) {
	var opts Options
	for _, field := range strings.Fields(conn) {
		if !strings.HasPrefix(field, "--") {
			return Options{}, fmt.Errorf("%w: unexpected token %q", ErrInvalidOptions, field)
		}
		name, value, _ := strings.Cut(strings.TrimPrefix(field, "--"), "=")
		name = strings.ToUpper(name)

		switch name {
		case "SERVER":
			host, err := ParseHost(value)
			if err != nil {
				return Options{}, err
			}
			opts.Hosts = append(opts.Hosts, host)
		case "DISTRIBUTION":
			switch strings.ToLower(value) {
			case "consistent", "ketama", "consistent-weighted":
				opts.Distribution = DistributionConsistent
			case "modula":
				opts.Distribution = DistributionModula
			default:
				return Options{}, fmt.Errorf("%w: unknown distribution %q", ErrInvalidOptions, value)
			}
		case "HASH":
			a, err := ParseAlgorithm(value)
			if err != nil {
				return Options{}, err
			}
			opts.Hash = a
		case "CONNECT-TIMEOUT":
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				return Options{}, fmt.Errorf("%w: bad connect timeout %q", ErrInvalidOptions, value)
			}
			opts.ConnectTimeout = time.Duration(ms) * time.Millisecond
		case "POOL-MAX":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return Options{}, fmt.Errorf("%w: bad pool size %q", ErrInvalidOptions, value)
			}
			opts.MaxIdleConns = n
		default:
			return Options{}, fmt.Errorf("%w: unknown option %q", ErrInvalidOptions, name)
		}
	}
	return opts, nil
}

// ParseHost reads "host[:port][/?weight]". IPv6 addresses may be bare or
// bracketed when no port is given.
func ParseHost(s string) (Host, error) {
	h := Host{Port: DefaultPort, Weight: 1}

	addr, weight, hasWeight := strings.Cut(s, "/?")
	if hasWeight {
		w, err := strconv.Atoi(weight)
		if err != nil || w <= 0 {
			return Host{}, fmt.Errorf("%w: bad weight in %q", ErrInvalidOptions, s)
		}
		h.Weight = w
	}

	if host, port, err := net.SplitHostPort(addr); err == nil {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Host{}, fmt.Errorf("%w: bad port in %q", ErrInvalidOptions, s)
		}
		h.Address = host
		h.Port = p
	} else if strings.HasPrefix(addr, "[") && strings.HasSuffix(addr, "]") {
		h.Address = addr[1 : len(addr)-1]
		if net.ParseIP(h.Address) == nil {
			return Host{}, fmt.Errorf("%w: bad server %q", ErrInvalidOptions, s)
		}
	} else if !strings.Contains(addr, ":") || isIPv6(addr) {
		h.Address = addr
	}

	if h.Address == "" || strings.ContainsAny(h.Address, "/") {
		return Host{}, fmt.Errorf("%w: bad server %q", ErrInvalidOptions, s)
	}
	return h, nil
}

func isIPv6(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.To4() == nil
}
