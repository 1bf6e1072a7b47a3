package credential

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/pkg/exception"
)

// Credential is one upstream API token, optionally bound to the egress
// identity it was issued for. Identity "*" matches any egress address.
const Wildcard = "*"

type Credential struct {
	Identity string
	Token    string
}

// State describes the selector's position in its lifecycle.
type State uint8

const (
	StateIdle State = iota
	StateUsing
	StateExhausted
)

// Selector picks among multiple upstream credentials. It prefers the
// credential bound to the currently detected egress identity, then the
// wildcard credential, then an arbitrary remaining one. The detected identity
// and the chosen credential are cached under independent TTLs.
type Selector struct {
	mu    sync.Mutex
	creds []Credential
	probe IdentityProbe

	identityTTL  time.Duration
	selectionTTL time.Duration
	now          func() time.Time

	identity   string
	detectedAt time.Time

	state      State
	selected   int
	selectedAt time.Time
}

// NewSelector builds a selector over an ordered candidate list.
func NewSelector(creds []Credential, probe IdentityProbe, identityTTL, selectionTTL time.Duration) *Selector {
	return &Selector{
		creds:        creds,
		probe:        probe,
		identityTTL:  identityTTL,
		selectionTTL: selectionTTL,
		now:          time.Now,
		selected:     -1,
	}
}

// Select returns the credential to use for the next fetch. Repeated calls
// within the selection TTL skip re-detection.
func (s *Selector) Select(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.creds) == 0 {
		return Credential{}, exception.ErrNoCredentials
	}

	if s.state == StateUsing && s.now().Sub(s.selectedAt) < s.selectionTTL {
		return s.creds[s.selected], nil
	}

	identity := s.detectIdentityLocked(ctx)
	s.selected = s.pickLocked(identity)
	s.selectedAt = s.now()
	s.state = StateUsing
	return s.creds[s.selected], nil
}

// Candidates returns every credential except the given one, in selection
// preference order. The gateway walks this list for same-tick failover.
func (s *Selector) Candidates(exclude Credential) []Credential {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Credential, 0, len(s.creds))
	for _, c := range s.creds {
		if c == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ReportSuccess marks c as the credential for subsequent calls.
func (s *Selector) ReportSuccess(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, cand := range s.creds {
		if cand == c {
			s.selected = i
			s.selectedAt = s.now()
			s.state = StateUsing
			return
		}
	}
}

// ReportFailure clears the selection if c is the active credential, forcing
// re-selection on the next call.
func (s *Selector) ReportFailure(c Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateUsing && s.selected >= 0 && s.creds[s.selected] == c {
		s.selected = -1
		s.state = StateIdle
	}
}

// ReportExhausted records that every candidate failed for one fetch attempt.
// No selection survives an all-failed attempt.
func (s *Selector) ReportExhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = -1
	s.state = StateExhausted
}

// State returns the current lifecycle state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Selector) detectIdentityLocked(ctx context.Context) string {
	if s.identity != "" && s.now().Sub(s.detectedAt) < s.identityTTL {
		return s.identity
	}
	if s.probe == nil {
		return ""
	}

	ip, err := s.probe.Detect(ctx)
	if err != nil {
		logs.Warnf("egress identity probe failed, err: %+v", err)
		return s.identity
	}

	s.identity = ip
	s.detectedAt = s.now()
	return ip
}

// pickLocked applies the preference order: identity match, wildcard,
// arbitrary remaining.
func (s *Selector) pickLocked(identity string) int {
	if identity != "" {
		for i, c := range s.creds {
			if c.Identity == identity {
				return i
			}
		}
	}
	for i, c := range s.creds {
		if c.Identity == Wildcard {
			return i
		}
	}
	return 0
}
