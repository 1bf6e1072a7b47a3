package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/coc"
	"main/internal/errors"
	"main/internal/event"
	"main/internal/store"
	"main/pkg/exception"
)

const (
	defaultMemberInterval  = 30 * time.Second
	defaultWarInterval     = time.Minute
	defaultUpgradeInterval = 5 * time.Minute
)

// Intervals are the inter-poll delays for one clan's loops.
type Intervals struct {
	Member  time.Duration
	War     time.Duration
	Upgrade time.Duration
}

func (i Intervals) withDefaults() Intervals {
	if i.Member <= 0 {
		i.Member = defaultMemberInterval
	}
	if i.War <= 0 {
		i.War = defaultWarInterval
	}
	if i.Upgrade <= 0 {
		i.Upgrade = defaultUpgradeInterval
	}
	return i
}

// Clan identifies one tracked clan.
type Clan struct {
	Name string
	Tag  string
}

// RunnerConfig bundles the per-clan tracker settings.
type RunnerConfig struct {
	Intervals  Intervals
	Membership MembershipConfig
	Upgrade    UpgradeConfig
}

// ClanRunner owns one clan's trackers and their poll loops. All mutable
// tracking state lives inside the runner; nothing is shared across clans
// except the API gateway.
type ClanRunner struct {
	clan      Clan
	api       *coc.Client
	intervals Intervals

	membership *Membership
	war        *WarTracker
	upgrades   *UpgradeTracker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClanRunner restores persisted state and builds the trackers.
func NewClanRunner(ctx context.Context, clan Clan, api *coc.Client, kv store.KV, sink event.Sink, cfg RunnerConfig) *ClanRunner {
	return &ClanRunner{
		clan:       clan,
		api:        api,
		intervals:  cfg.Intervals.withDefaults(),
		membership: NewMembership(ctx, clan.Tag, cfg.Membership, kv, sink),
		war:        NewWarTracker(ctx, clan.Tag, kv, sink),
		upgrades:   NewUpgradeTracker(clan.Tag, cfg.Upgrade, sink),
	}
}

// Start launches the poll loops. They run until Stop or parent cancellation.
func (r *ClanRunner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	logs.Infof("tracking %s (%s)", r.clan.Name, r.clan.Tag)

	r.wg.Add(3)
	go r.loop(ctx, "membership", r.intervals.Member, r.memberTick)
	go r.loop(ctx, "war", r.intervals.War, r.warTick)
	go r.loop(ctx, "upgrade", r.intervals.Upgrade, r.upgradeTick)
}

// Stop cancels the loops and waits for in-flight ticks to finish, so no
// event is emitted for a stopped clan.
func (r *ClanRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	logs.Infof("stopped tracking %s (%s)", r.clan.Name, r.clan.Tag)
}

// loop runs tick forever with the configured inter-poll delay. A failed or
// panicking tick is logged and followed by the normal delay; loops need no
// external supervision.
func (r *ClanRunner) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		r.runTick(ctx, name, tick)
	}
}

func (r *ClanRunner) runTick(ctx context.Context, name string, tick func(context.Context) error) {
	defer func() {
		if p := recover(); p != nil {
			logs.Errorf("%s tick for %s panicked: %+v", name, r.clan.Tag, p)
		}
	}()

	if err := tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logs.Warnf("%s tick for %s skipped, err: %+v", name, r.clan.Tag, err)
	}
}

// memberTick polls the roster and feeds the membership diff.
func (r *ClanRunner) memberTick(ctx context.Context) error {
	members, err := r.api.ClanMembers(ctx, r.clan.Tag)
	if err != nil {
		return err
	}
	r.membership.Apply(ctx, members)
	return nil
}

// warTick polls the current war. A clan without an accessible war is idle,
// not an error.
func (r *ClanRunner) warTick(ctx context.Context) error {
	war, err := r.api.CurrentWar(ctx, r.clan.Tag)
	if err != nil {
		if errors.Is(err, exception.ErrNotFound) {
			return nil
		}
		return err
	}
	r.war.Apply(ctx, war)
	return nil
}

// upgradeTick polls each member's player document and feeds the upgrade
// diff. Individual player failures skip that member only.
func (r *ClanRunner) upgradeTick(ctx context.Context) error {
	members, err := r.api.ClanMembers(ctx, r.clan.Tag)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Tag == "" {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		player, err := r.api.Player(ctx, m.Tag)
		if err != nil {
			if !errors.Is(err, exception.ErrNotFound) {
				logs.Debugf("player %s unavailable this tick, err: %+v", m.Tag, err)
			}
			continue
		}
		r.upgrades.Apply(player)
	}
	return nil
}
