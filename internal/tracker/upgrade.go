package tracker

import (
	"fmt"
	"sort"
	"time"

	"main/internal/coc"
	"main/internal/event"
)

const defaultHeroAlertMin = 3

// Descriptor uniquely identifies one running upgrade.
type Descriptor struct {
	Kind   string
	Name   string
	Target int
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s: %s -> L%d", d.Kind, d.Name, d.Target)
}

// UpgradeConfig tunes the upgrade tracker.
type UpgradeConfig struct {
	// HeroAlertMin is the simultaneous hero-upgrade count that triggers a
	// HeroAlert event. Negative disables the alert.
	HeroAlertMin int
}

func (c UpgradeConfig) withDefaults() UpgradeConfig {
	if c.HeroAlertMin == 0 {
		c.HeroAlertMin = defaultHeroAlertMin
	}
	return c
}

// UpgradeTracker emits UpgradeStarted for descriptors that appear between
// consecutive polls of a player. The retained set is replaced wholesale every
// poll; a descriptor disappearing (upgrade finished) is not an event.
type UpgradeTracker struct {
	clanTag string
	cfg     UpgradeConfig
	sink    event.Sink
	prev    map[string]map[Descriptor]struct{}
}

// NewUpgradeTracker starts with no retained sets; every player's first poll
// establishes their baseline.
func NewUpgradeTracker(clanTag string, cfg UpgradeConfig, sink event.Sink) *UpgradeTracker {
	return &UpgradeTracker{
		clanTag: clanTag,
		cfg:     cfg.withDefaults(),
		sink:    sink,
		prev:    make(map[string]map[Descriptor]struct{}),
	}
}

// Descriptors extracts the active upgrades from a player document.
func Descriptors(p *coc.Player) map[Descriptor]struct{} {
	out := make(map[Descriptor]struct{})
	collect := func(kind string, items []coc.PlayerItem) {
		for _, item := range items {
			if !item.Upgrading() {
				continue
			}
			out[Descriptor{Kind: kind, Name: item.Name, Target: item.Level + 1}] = struct{}{}
		}
	}
	collect("Hero", p.Heroes)
	collect("Pet", p.Pets)
	collect("Troop", p.Troops)
	collect("Spell", p.Spells)
	return out
}

// Apply diffs one player poll against the retained descriptor set.
func (u *UpgradeTracker) Apply(p *coc.Player) {
	if p == nil || p.Tag == "" {
		return
	}

	current := Descriptors(p)
	previous := u.prev[p.Tag]

	var added []string
	var heroAdded bool
	for d := range current {
		if _, ok := previous[d]; !ok {
			added = append(added, d.String())
			if d.Kind == "Hero" {
				heroAdded = true
			}
		}
	}
	sort.Strings(added)

	now := time.Now()
	if len(added) > 0 {
		u.sink.Emit(event.Event{
			Kind:    event.KindUpgradeStarted,
			ClanTag: u.clanTag,
			At:      now,
			UpgradeStarted: &event.UpgradeStarted{
				Tag:        p.Tag,
				PlayerName: p.Name,
				Items:      added,
			},
		})
	}

	// alert only when a hero upgrade just started, so an unchanged poll never
	// repeats the alert
	if u.cfg.HeroAlertMin > 0 && heroAdded {
		var heroes []string
		for d := range current {
			if d.Kind == "Hero" {
				heroes = append(heroes, d.Name)
			}
		}
		if len(heroes) >= u.cfg.HeroAlertMin {
			sort.Strings(heroes)
			u.sink.Emit(event.Event{
				Kind:    event.KindHeroAlert,
				ClanTag: u.clanTag,
				At:      now,
				HeroAlert: &event.HeroAlert{
					Tag:        p.Tag,
					PlayerName: p.Name,
					Heroes:     heroes,
				},
			})
		}
	}

	u.prev[p.Tag] = current
}
