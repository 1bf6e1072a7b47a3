package donation

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/coc"
	"main/internal/errors"
	"main/internal/store"
)

const retainedMonths = 24

// Lifetime carries the donation totals derived from achievements.
type Lifetime struct {
	Troops int `json:"troops_donated"`
	Spells int `json:"spells_donated"`
	Siege  int `json:"siege_donated"`
	Total  int `json:"total_donated"`
}

// achievementFields maps achievement names to lifetime counters.
var achievementFields = map[string]func(*Lifetime, int){
	"friend in need":    func(l *Lifetime, v int) { l.Troops = v },
	"sharing is caring": func(l *Lifetime, v int) { l.Spells = v },
	"siege sharer":      func(l *Lifetime, v int) { l.Siege = v },
}

// ExtractLifetime reads the donation achievements off a player document.
// Unknown or missing achievements simply leave their counter at zero.
func ExtractLifetime(p *coc.Player) Lifetime {
	var l Lifetime
	if p == nil {
		return l
	}
	for _, a := range p.Achievements {
		if set, ok := achievementFields[strings.ToLower(a.Name)]; ok {
			set(&l, a.Value)
		}
	}
	l.Total = l.Troops + l.Spells + l.Siege
	return l
}

// MonthKey formats t as the YYYY-MM snapshot key.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MemberSnapshot is one member's donation state at snapshot time.
type MemberSnapshot struct {
	Name     string   `json:"name"`
	Seasonal int      `json:"seasonal"`
	Lifetime Lifetime `json:"lifetime"`
}

// Snapshot records a clan's donation state for one month.
type Snapshot struct {
	Date    string                    `json:"date"`
	TakenAt time.Time                 `json:"timestamp"`
	Members map[string]MemberSnapshot `json:"members"`
}

// MemberDelta is one member's monthly figure.
type MemberDelta struct {
	Name     string
	Monthly  int
	Seasonal int
	Lifetime Lifetime
}

// Delta is a month's donation report for a clan.
type Delta struct {
	Month   string
	Members map[string]MemberDelta
	Total   int
	// NoBaseline marks the first snapshot: with nothing to diff against the
	// report carries a zero total instead of failing.
	NoBaseline bool
}

// Engine owns the per-clan snapshot history, persisted as a single blob in
// the KV store and pruned to the newest entries per clan.
type Engine struct {
	kv      store.KV
	history map[string][]Snapshot
}

// NewEngine restores the persisted snapshot history.
func NewEngine(ctx context.Context, kv store.KV) *Engine {
	e := &Engine{kv: kv, history: make(map[string][]Snapshot)}

	blob, found, err := kv.Load(ctx, store.KeyDonationHistory)
	if err != nil {
		logs.Warnf("load donation history failed, starting empty, err: %+v", err)
		return e
	}
	if found {
		if err := json.Unmarshal(blob, &e.history); err != nil {
			logs.Warnf("donation history is corrupt, starting empty, err: %+v", err)
			e.history = make(map[string][]Snapshot)
		}
	}
	return e
}

// Take builds a snapshot for the current month from a roster and the fetched
// player documents. Members without a player document are skipped.
func (e *Engine) Take(clanTag string, members []coc.ClanMember, players map[string]*coc.Player) Snapshot {
	snap := Snapshot{
		Date:    MonthKey(time.Now()),
		TakenAt: time.Now().UTC(),
		Members: make(map[string]MemberSnapshot, len(members)),
	}
	for _, m := range members {
		if m.Tag == "" {
			continue
		}
		p, ok := players[m.Tag]
		if !ok || p == nil {
			continue
		}
		name := p.Name
		if name == "" {
			name = m.Name
		}
		snap.Members[m.Tag] = MemberSnapshot{
			Name:     name,
			Seasonal: p.Donations,
			Lifetime: ExtractLifetime(p),
		}
	}
	return snap
}

// Save stores a snapshot, replacing any existing one for the same month and
// pruning the clan's history to the newest entries. Saving is idempotent per
// month key.
func (e *Engine) Save(ctx context.Context, clanTag string, snap Snapshot) error {
	kept := make([]Snapshot, 0, len(e.history[clanTag])+1)
	for _, s := range e.history[clanTag] {
		if s.Date != snap.Date {
			kept = append(kept, s)
		}
	}
	kept = append(kept, snap)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date > kept[j].Date })
	if len(kept) > retainedMonths {
		kept = kept[:retainedMonths]
	}
	e.history[clanTag] = kept

	blob, err := json.Marshal(e.history)
	if err != nil {
		return errors.Wrap(err, "marshal donation history")
	}
	if err := e.kv.Save(ctx, store.KeyDonationHistory, blob); err != nil {
		return errors.Wrap(err, "persist donation history")
	}
	return nil
}

// Latest returns the most recent snapshot for a clan.
func (e *Engine) Latest(clanTag string) (Snapshot, bool) {
	snaps := e.history[clanTag]
	if len(snaps) == 0 {
		return Snapshot{}, false
	}
	return snaps[0], true
}

// TrackingSince returns the month of the oldest retained snapshot.
func (e *Engine) TrackingSince(clanTag string) (string, bool) {
	snaps := e.history[clanTag]
	if len(snaps) == 0 {
		return "", false
	}
	return snaps[len(snaps)-1].Date, true
}

// Delta computes the monthly donation report for the given month. The
// monthly figure per member is the seasonal counter's increase over the
// chronologically preceding snapshot, clamped at zero across season
// rollovers; a member with no previous entry contributes their current
// seasonal count as a best-effort figure.
func (e *Engine) Delta(clanTag, monthKey string) (Delta, bool) {
	snaps := append([]Snapshot(nil), e.history[clanTag]...)
	if len(snaps) == 0 {
		return Delta{}, false
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Date < snaps[j].Date })

	idx := -1
	for i, s := range snaps {
		if s.Date == monthKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Delta{}, false
	}
	if idx == 0 {
		return Delta{Month: monthKey, Members: map[string]MemberDelta{}, NoBaseline: true}, true
	}

	target, prev := snaps[idx], snaps[idx-1]
	out := Delta{Month: monthKey, Members: make(map[string]MemberDelta, len(target.Members))}
	for tag, cur := range target.Members {
		monthly := cur.Seasonal
		if p, ok := prev.Members[tag]; ok {
			monthly = max(0, cur.Seasonal-p.Seasonal)
		}
		out.Members[tag] = MemberDelta{
			Name:     cur.Name,
			Monthly:  monthly,
			Seasonal: cur.Seasonal,
			Lifetime: cur.Lifetime,
		}
		out.Total += monthly
	}
	return out, true
}

// History returns the newest monthly reports, most recent first.
func (e *Engine) History(clanTag string, limit int) []Delta {
	snaps := e.history[clanTag]
	if limit <= 0 || limit > len(snaps) {
		limit = len(snaps)
	}
	out := make([]Delta, 0, limit)
	for _, s := range snaps[:limit] {
		if d, ok := e.Delta(clanTag, s.Date); ok {
			out = append(out, d)
		}
	}
	return out
}
