package tracker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/coc"
	"main/internal/event"
)

func warPoll(state, opponent, prepStart string, attacks map[string]int) *coc.War {
	w := &coc.War{State: state, PreparationStartTime: prepStart}
	w.Opponent.Tag = opponent
	for tag, n := range attacks {
		m := coc.WarMember{Tag: tag, Name: "player-" + tag}
		for i := 0; i < n; i++ {
			m.Attacks = append(m.Attacks, coc.WarAttack{
				DefenderTag: "#DEF", Stars: 2, DestructionPercentage: 70, Order: i + 1,
			})
		}
		w.Clan.Members = append(w.Clan.Members, m)
	}
	return w
}

func TestWarDiffEmitsOnlyNewAttacks(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	w := NewWarTracker(ctx, "#CLAN", newFileKV(t), sink)

	w.Apply(ctx, warPoll("inWar", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 1}))
	require.Len(t, sink.events, 1)
	assert.Equal(t, 1, sink.events[0].WarAttack.AttackNumber)
	sink.events = nil

	w.Apply(ctx, warPoll("inWar", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, event.KindNewWarAttack, e.Kind)
	assert.Equal(t, "#P1", e.WarAttack.AttackerTag)
	assert.Equal(t, 2, e.WarAttack.AttackNumber)
	sink.events = nil

	// unchanged re-poll emits nothing
	w.Apply(ctx, warPoll("inWar", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	assert.Empty(t, sink.events)
}

func TestWarIdleOutsideInWar(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	w := NewWarTracker(ctx, "#CLAN", nil, sink)

	w.Apply(ctx, warPoll("preparation", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 1}))
	w.Apply(ctx, warPoll("warEnded", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	w.Apply(ctx, nil)
	assert.Empty(t, sink.events)
}

func TestWarIdentityResetsBaseline(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	w := NewWarTracker(ctx, "#CLAN", nil, sink)

	w.Apply(ctx, warPoll("inWar", "#OPP1", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	require.Len(t, sink.events, 2)
	sink.events = nil

	// a new war with the same roster starts counting from zero again
	w.Apply(ctx, warPoll("inWar", "#OPP2", "20240201T000000.000Z", map[string]int{"#P1": 1}))
	require.Len(t, sink.events, 1)
	assert.Equal(t, 1, sink.events[0].WarAttack.AttackNumber)
}

func TestWarBaselineSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kv := newFileKV(t)

	sink := &captureSink{}
	w := NewWarTracker(ctx, "#CLAN", kv, sink)
	w.Apply(ctx, warPoll("inWar", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	require.Len(t, sink.events, 2)

	// restart mid-war: the persisted baseline suppresses replayed attacks
	sink2 := &captureSink{}
	w2 := NewWarTracker(ctx, "#CLAN", kv, sink2)
	w2.Apply(ctx, warPoll("inWar", "#OPP", "20240101T000000.000Z", map[string]int{"#P1": 2}))
	assert.Empty(t, sink2.events)
}
