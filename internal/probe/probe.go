// Package probe implements the pre-flight connectivity checks run before
// any stateful action is taken against a target: name resolution, echo
// reachability, and WinRM availability. Each check gates the next; a
// failure is authoritative for the attempt and nothing is retried here.
package probe

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/opsdeck/winstall/internal/winrm"
)

// FailStage identifies which pre-flight check failed, if any.
type FailStage string

const (
	FailNone     FailStage = "none"
	FailDNS      FailStage = "dns"
	FailPing     FailStage = "ping"
	FailRemoting FailStage = "remoting"
)

// Report is the outcome of one pre-flight pass. A field is only
// meaningful if every earlier check succeeded.
type Report struct {
	Resolved          bool
	Reachable         bool
	RemotingAvailable bool
	FailStage         FailStage
	Detail            string // human-readable failure detail, empty on success
}

// OK reports whether all checks passed.
func (r Report) OK() bool {
	return r.FailStage == FailNone
}

const (
	echoProbes  = 2
	echoTimeout = 3 * time.Second
)

// Prober runs the pre-flight checks. The check functions are fields so
// tests can substitute them; New wires in the real ones.
type Prober struct {
	resolve  func(ctx context.Context, host string) ([]string, error)
	echo     func(ctx context.Context, host string) error
	remoting func(ctx context.Context, host string) error
}

// New creates a Prober whose remoting check opens and closes a WinRM
// shell using the given credentials.
func New(target *winrm.Target) *Prober {
	return &Prober{
		resolve: func(ctx context.Context, host string) ([]string, error) {
			return net.DefaultResolver.LookupHost(ctx, host)
		},
		echo: func(ctx context.Context, host string) error {
			return tcpEcho(ctx, host, target)
		},
		remoting: func(ctx context.Context, host string) error {
			t := *target
			t.Hostname = host
			sess, err := winrm.Connect(&t)
			if err != nil {
				return err
			}
			sess.Close()
			return nil
		},
	}
}

// Probe runs the three checks in strict order and stops at the first
// failure.
func (p *Prober) Probe(ctx context.Context, host string) Report {
	addrs, err := p.resolve(ctx, host)
	if err != nil || len(addrs) == 0 {
		log.Printf("[probe] %s: name resolution failed: %v", host, err)
		return Report{FailStage: FailDNS, Detail: fmt.Sprintf("name resolution failed: %v", err)}
	}
	log.Printf("[probe] %s resolved to %v", host, addrs)

	if err := p.echo(ctx, host); err != nil {
		log.Printf("[probe] %s: echo probes failed: %v", host, err)
		return Report{Resolved: true, FailStage: FailPing, Detail: fmt.Sprintf("host did not answer %d echo probes: %v", echoProbes, err)}
	}

	if err := p.remoting(ctx, host); err != nil {
		log.Printf("[probe] %s: remoting unavailable: %v", host, err)
		return Report{Resolved: true, Reachable: true, FailStage: FailRemoting, Detail: fmt.Sprintf("remote execution channel unavailable: %v", err)}
	}

	log.Printf("[probe] %s: all pre-flight checks passed", host)
	return Report{Resolved: true, Reachable: true, RemotingAvailable: true, FailStage: FailNone}
}

// tcpEcho sends a fixed number of TCP connect probes against the WinRM
// port with a bounded timeout. Any answered probe counts as reachable; no
// response to all of them is a failure, not an error to retry.
func tcpEcho(ctx context.Context, host string, target *winrm.Target) error {
	t := *target
	t.Hostname = host
	addr := t.Addr()

	var lastErr error
	for i := 0; i < echoProbes; i++ {
		dialer := net.Dialer{Timeout: echoTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return lastErr
}
