package tracker

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/coc"
	"main/internal/event"
	"main/internal/store"
)

const defaultDebounceThreshold = 2

// MembershipConfig tunes the join/leave state machine.
type MembershipConfig struct {
	// DebounceThreshold is the number of consecutive polls a tag must be
	// missing before a Leave is confirmed.
	DebounceThreshold int
	// SkipEmpty discards polls with an empty roster; an empty result is more
	// likely a transient upstream fault than a mass exodus.
	SkipEmpty bool
}

func (c MembershipConfig) withDefaults() MembershipConfig {
	if c.DebounceThreshold <= 0 {
		c.DebounceThreshold = defaultDebounceThreshold
	}
	return c
}

// Membership diffs roster snapshots for one clan into Join and Leave events.
// Each tag moves through Absent -> Member -> Missing(n) -> Absent; the final
// transition fires only after DebounceThreshold consecutive missing polls.
type Membership struct {
	clanTag string
	cfg     MembershipConfig
	kv      store.KV
	sink    event.Sink

	known        map[string]struct{}
	missCounts   map[string]int
	names        map[string]string
	bootstrapped bool
}

// NewMembership restores the persisted known-tag set for the clan.
func NewMembership(ctx context.Context, clanTag string, cfg MembershipConfig, kv store.KV, sink event.Sink) *Membership {
	m := &Membership{
		clanTag:    clanTag,
		cfg:        cfg.withDefaults(),
		kv:         kv,
		sink:       sink,
		known:      make(map[string]struct{}),
		missCounts: make(map[string]int),
		names:      make(map[string]string),
	}

	blob, found, err := kv.Load(ctx, store.KeyPrefixMembers+clanTag)
	if err != nil {
		logs.Warnf("load member set for %s failed, starting empty, err: %+v", clanTag, err)
		return m
	}
	if found {
		var tags []string
		if err := json.Unmarshal(blob, &tags); err != nil {
			logs.Warnf("member set for %s is corrupt, starting empty, err: %+v", clanTag, err)
			return m
		}
		for _, tag := range tags {
			m.known[tag] = struct{}{}
		}
	}
	// a clan with persisted members never re-bootstraps
	m.bootstrapped = len(m.known) > 0
	return m
}

// Known returns a sorted copy of the retained tag set.
func (m *Membership) Known() []string {
	tags := make([]string, 0, len(m.known))
	for tag := range m.known {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Apply processes one roster snapshot. Joins are resolved before the
// leave-debounce so a tag that leaves and rejoins within one tick never
// produces a spurious Leave.
func (m *Membership) Apply(ctx context.Context, members []coc.ClanMember) {
	if len(members) == 0 && m.cfg.SkipEmpty {
		return
	}

	current := make(map[string]coc.ClanMember, len(members))
	for _, mem := range members {
		if mem.Tag == "" {
			continue
		}
		current[mem.Tag] = mem
		m.names[mem.Tag] = mem.Name
	}

	if !m.bootstrapped {
		// only an actual adoption consumes the flag; a transient empty first
		// poll must not turn the first real snapshot into a Join flood
		if len(current) == 0 {
			return
		}
		m.bootstrapped = true
		// first non-empty snapshot for an untracked clan: adopt silently so
		// startup never floods the sink with a Join per existing member
		for tag := range current {
			m.known[tag] = struct{}{}
		}
		m.persist(ctx)
		logs.Infof("bootstrapped %s with %d members", m.clanTag, len(current))
		return
	}

	now := time.Now()

	var joined bool
	for _, tag := range sortedTags(current) {
		if _, ok := m.known[tag]; ok {
			continue
		}
		mem := current[tag]
		m.known[tag] = struct{}{}
		delete(m.missCounts, tag)
		joined = true
		m.sink.Emit(event.Event{
			Kind:    event.KindJoin,
			ClanTag: m.clanTag,
			At:      now,
			Join:    &event.Join{Tag: tag, Name: mem.Name, TownHallLevel: mem.TownHallLevel},
		})
	}
	if joined {
		m.persist(ctx)
	}

	var left bool
	for _, tag := range m.Known() {
		if _, ok := current[tag]; ok {
			delete(m.missCounts, tag)
			continue
		}
		m.missCounts[tag]++
		if m.missCounts[tag] < m.cfg.DebounceThreshold {
			continue
		}
		delete(m.known, tag)
		delete(m.missCounts, tag)
		left = true
		m.sink.Emit(event.Event{
			Kind:    event.KindLeave,
			ClanTag: m.clanTag,
			At:      now,
			Leave:   &event.Leave{Tag: tag, Name: m.nameFor(tag)},
		})
	}
	if left {
		m.persist(ctx)
	}
}

func (m *Membership) nameFor(tag string) string {
	if name, ok := m.names[tag]; ok {
		return name
	}
	return tag
}

func (m *Membership) persist(ctx context.Context) {
	blob, err := json.Marshal(m.Known())
	if err != nil {
		logs.Errorf("marshal member set for %s, err: %+v", m.clanTag, err)
		return
	}
	if err := m.kv.Save(ctx, store.KeyPrefixMembers+m.clanTag, blob); err != nil {
		// memory stays authoritative; the next confirmed change retries
		logs.Warnf("persist member set for %s failed, err: %+v", m.clanTag, err)
	}
}

func sortedTags(members map[string]coc.ClanMember) []string {
	tags := make([]string, 0, len(members))
	for tag := range members {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
