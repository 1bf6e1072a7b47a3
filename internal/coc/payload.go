package coc

import "encoding/json"

// Payload types mirror the upstream JSON documents. Only the fields the
// trackers read are mapped; anything else the upstream sends is ignored, and
// a missing field decodes to its zero value rather than an error.

// Clan is the /clans/{tag} document.
type Clan struct {
	Tag        string       `json:"tag"`
	Name       string       `json:"name"`
	Members    int          `json:"members"`
	MemberList []ClanMember `json:"memberList"`
}

// ClanMember is one roster entry.
type ClanMember struct {
	Tag               string `json:"tag"`
	Name              string `json:"name"`
	Role              string `json:"role"`
	TownHallLevel     int    `json:"townHallLevel"`
	Donations         int    `json:"donations"`
	DonationsReceived int    `json:"donationsReceived"`
}

// Player is the /players/{tag} document.
type Player struct {
	Tag               string        `json:"tag"`
	Name              string        `json:"name"`
	TownHallLevel     int           `json:"townHallLevel"`
	Donations         int           `json:"donations"`
	DonationsReceived int           `json:"donationsReceived"`
	Heroes            []PlayerItem  `json:"heroes"`
	Troops            []PlayerItem  `json:"troops"`
	Spells            []PlayerItem  `json:"spells"`
	Pets              []PlayerItem  `json:"pets"`
	Achievements      []Achievement `json:"achievements"`
}

// PlayerItem is a hero, troop, spell, or pet entry. UpgradeTimeLeft is only
// present while an upgrade is running; the upstream has been observed sending
// it as both a number and a string, so it decodes through json.Number.
type PlayerItem struct {
	Name            string      `json:"name"`
	Level           int         `json:"level"`
	MaxLevel        int         `json:"maxLevel"`
	Village         string      `json:"village"`
	UpgradeTimeLeft json.Number `json:"upgradeTimeLeft"`
}

// Upgrading reports whether the item currently has an active upgrade.
func (i PlayerItem) Upgrading() bool {
	s := i.UpgradeTimeLeft.String()
	return s != "" && s != "0"
}

// Achievement carries lifetime counters such as donation totals.
type Achievement struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// War is the /clans/{tag}/currentwar document.
type War struct {
	State                string  `json:"state"`
	TeamSize             int     `json:"teamSize"`
	PreparationStartTime string  `json:"preparationStartTime"`
	StartTime            string  `json:"startTime"`
	EndTime              string  `json:"endTime"`
	Clan                 WarClan `json:"clan"`
	Opponent             WarClan `json:"opponent"`
}

// WarStateInWar is the only state in which attack diffs are produced.
const WarStateInWar = "inWar"

// InProgress reports whether attacks can still be appended.
func (w *War) InProgress() bool {
	return w != nil && w.State == WarStateInWar
}

// Identity distinguishes one war from the next even when both involve the
// same roster. Baselines keyed by it never leak across consecutive wars.
func (w *War) Identity() string {
	if w == nil {
		return ""
	}
	return w.Opponent.Tag + "|" + w.PreparationStartTime
}

// WarClan is one side of a war.
type WarClan struct {
	Tag     string      `json:"tag"`
	Name    string      `json:"name"`
	Stars   int         `json:"stars"`
	Members []WarMember `json:"members"`
}

// WarMember is one participant with their attack list, append-only while the
// war runs.
type WarMember struct {
	Tag     string      `json:"tag"`
	Name    string      `json:"name"`
	Attacks []WarAttack `json:"attacks"`
}

// WarAttack is a single executed attack.
type WarAttack struct {
	AttackerTag           string `json:"attackerTag"`
	DefenderTag           string `json:"defenderTag"`
	Stars                 int    `json:"stars"`
	DestructionPercentage int    `json:"destructionPercentage"`
	Order                 int    `json:"order"`
}

// CapitalRaidSeason is the /clans/{tag}/capitalraidseason document, trimmed
// to the current season's member usage.
type CapitalRaidSeason struct {
	Items []RaidSeason `json:"items"`
}

// RaidSeason is one raid weekend.
type RaidSeason struct {
	State   string       `json:"state"`
	Members []RaidMember `json:"members"`
}

// RaidMember is one participant's attack usage.
type RaidMember struct {
	Tag          string `json:"tag"`
	Name         string `json:"name"`
	Attacks      int    `json:"attacks"`
	AttackLimit  int    `json:"attackLimit"`
	BonusAttacks int    `json:"bonusAttackLimit"`
}
