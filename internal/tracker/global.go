package tracker

import (
	"context"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/coc"
	"main/internal/donation"
	"main/internal/errors"
	"main/internal/event"
	"main/pkg/exception"
)

const (
	reminderPollInterval = 30 * time.Second
	snapshotPollInterval = time.Hour
)

// reminderGate dedups reminder scans to one per even hour. The sent set is
// keyed by day, so a slow scan spanning midnight can never leave a stale set
// that disables every later reminder.
type reminderGate struct {
	day   string
	hours map[int]struct{}
}

func (g *reminderGate) due(now time.Time) bool {
	if day := now.Format("2006-01-02"); day != g.day {
		g.day = day
		g.hours = make(map[int]struct{})
	}
	if now.Minute() != 0 || now.Hour()%2 != 0 {
		return false
	}
	if _, done := g.hours[now.Hour()]; done {
		return false
	}
	g.hours[now.Hour()] = struct{}{}
	return true
}

// RunWarReminders scans every tracked clan's war at each even hour and emits
// one WarReminder per clan that still has members with zero attacks. It runs
// until the context is cancelled.
func RunWarReminders(ctx context.Context, reg *Registry, api *coc.Client, sink event.Sink) {
	logs.Info("war reminder loop started")
	gate := &reminderGate{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(reminderPollInterval):
		}

		if !gate.due(time.Now()) {
			continue
		}

		for _, clan := range reg.Clans() {
			remindClan(ctx, api, sink, clan)
		}
	}
}

func remindClan(ctx context.Context, api *coc.Client, sink event.Sink, clan Clan) {
	war, err := api.CurrentWar(ctx, clan.Tag)
	if err != nil {
		if !errors.Is(err, exception.ErrNotFound) && !errors.Is(err, context.Canceled) {
			logs.Warnf("reminder scan for %s skipped, err: %+v", clan.Tag, err)
		}
		return
	}
	if !war.InProgress() {
		return
	}

	var pending []event.PendingAttacker
	for _, m := range war.Clan.Members {
		if m.Tag != "" && len(m.Attacks) == 0 {
			pending = append(pending, event.PendingAttacker{Tag: m.Tag, Name: m.Name})
		}
	}
	if len(pending) == 0 {
		return
	}

	sink.Emit(event.Event{
		Kind:    event.KindWarReminder,
		ClanTag: clan.Tag,
		At:      time.Now(),
		WarReminder: &event.WarReminder{
			ClanName: clan.Name,
			Pending:  pending,
		},
	})
}

// RunMonthlySnapshots takes one donation snapshot per clan per month on the
// configured day. The engine's own history doubles as the already-taken
// marker, so a restart on the snapshot day does not duplicate work.
func RunMonthlySnapshots(ctx context.Context, reg *Registry, api *coc.Client, engine *donation.Engine, sink event.Sink, dayOfMonth int) {
	if dayOfMonth < 1 || dayOfMonth > 28 {
		dayOfMonth = 1
	}
	logs.Info("monthly snapshot loop started")

	for {
		now := time.Now().UTC()
		if now.Day() == dayOfMonth {
			month := donation.MonthKey(now)
			for _, clan := range reg.Clans() {
				if latest, ok := engine.Latest(clan.Tag); ok && latest.Date == month {
					continue
				}
				snapshotClan(ctx, api, engine, sink, clan)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(snapshotPollInterval):
		}
	}
}

func snapshotClan(ctx context.Context, api *coc.Client, engine *donation.Engine, sink event.Sink, clan Clan) {
	members, err := api.ClanMembers(ctx, clan.Tag)
	if err != nil {
		logs.Warnf("snapshot roster fetch for %s failed, err: %+v", clan.Tag, err)
		return
	}
	if len(members) == 0 {
		return
	}

	players := make(map[string]*coc.Player, len(members))
	for _, m := range members {
		if m.Tag == "" || ctx.Err() != nil {
			continue
		}
		p, err := api.Player(ctx, m.Tag)
		if err != nil {
			continue
		}
		players[m.Tag] = p
	}
	if len(players) == 0 {
		return
	}

	snap := engine.Take(clan.Tag, members, players)
	if err := engine.Save(ctx, clan.Tag, snap); err != nil {
		logs.Warnf("snapshot save for %s failed, err: %+v", clan.Tag, err)
		return
	}

	logs.Infof("donation snapshot for %s (%s): %d members", clan.Name, clan.Tag, len(snap.Members))
	sink.Emit(event.Event{
		Kind:    event.KindSnapshotTaken,
		ClanTag: clan.Tag,
		At:      time.Now(),
		Snapshot: &event.Snapshot{
			Month:   snap.Date,
			Members: len(snap.Members),
		},
	})
}
