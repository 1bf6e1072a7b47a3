package event

import "time"

// Kind identifies a notification event type.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindJoin
	KindLeave
	KindNewWarAttack
	KindUpgradeStarted
	KindSnapshotTaken
	KindHeroAlert
	KindWarReminder
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindNewWarAttack:
		return "new_war_attack"
	case KindUpgradeStarted:
		return "upgrade_started"
	case KindSnapshotTaken:
		return "snapshot_taken"
	case KindHeroAlert:
		return "hero_alert"
	case KindWarReminder:
		return "war_reminder"
	default:
		return "unknown"
	}
}

// Event is one state transition detected by a tracker, carrying the minimal
// data the rendering layer needs. Exactly one payload field is set, matching
// Kind.
type Event struct {
	Kind    Kind
	ClanTag string
	At      time.Time

	Join           *Join
	Leave          *Leave
	WarAttack      *WarAttack
	UpgradeStarted *UpgradeStarted
	Snapshot       *Snapshot
	HeroAlert      *HeroAlert
	WarReminder    *WarReminder
}

// Join reports a tag newly present in the roster.
type Join struct {
	Tag           string
	Name          string
	TownHallLevel int
}

// Leave reports a confirmed departure after debounce.
type Leave struct {
	Tag  string
	Name string
}

// WarAttack reports one newly appended attack.
type WarAttack struct {
	AttackerTag   string
	AttackerName  string
	DefenderTag   string
	Stars         int
	Destruction   int
	AttackNumber  int
}

// UpgradeStarted reports descriptors that appeared since the previous poll.
type UpgradeStarted struct {
	Tag        string
	PlayerName string
	Items      []string
}

// Snapshot reports a stored monthly donation snapshot.
type Snapshot struct {
	Month   string
	Members int
}

// HeroAlert reports a member upgrading several heroes at once.
type HeroAlert struct {
	Tag        string
	PlayerName string
	Heroes     []string
}

// WarReminder lists members with zero attacks in a running war.
type WarReminder struct {
	ClanName string
	Pending  []PendingAttacker
}

// PendingAttacker is one member yet to attack.
type PendingAttacker struct {
	Tag  string
	Name string
}

// Sink receives tracker events. Implementations must not block.
type Sink interface {
	Emit(Event)
}
