package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// TXTResolver looks up TXT records. A name with no TXT records (or NXDOMAIN)
// is an empty result, not an error; errors are transient failures.
type TXTResolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type dnsResolver struct {
	server string
	udp    *dns.Client
	tcp    *dns.Client
}

// NewDNSResolver queries server (host:port) directly, retrying over TCP when
// the UDP answer is truncated.
func NewDNSResolver(server string, timeout time.Duration) TXTResolver {
	return &dnsResolver{
		server: server,
		udp:    &dns.Client{Net: "udp", Timeout: timeout},
		tcp:    &dns.Client{Net: "tcp", Timeout: timeout},
	}
}

func (r *dnsResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	in, _, err := r.udp.ExchangeContext(ctx, msg, r.server)
	if err == nil && in.Truncated {
		in, _, err = r.tcp.ExchangeContext(ctx, msg, r.server)
	}
	if err != nil {
		return nil, err
	}

	switch in.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("%s answered %s for %s", r.server, dns.RcodeToString[in.Rcode], name)
	}

	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			// long records arrive as several character strings
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}
