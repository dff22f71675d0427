package entities

import (
	"math"
	"time"
)

type VoteChoice string

const (
	VoteChoiceYes     VoteChoice = "yes"
	VoteChoiceNo      VoteChoice = "no"
	VoteChoiceAbstain VoteChoice = "abstain"
)

func (c VoteChoice) Valid() bool {
	return c == VoteChoiceYes || c == VoteChoiceNo || c == VoteChoiceAbstain
}

type Vote struct {
	Voter         Account
	Choice        VoteChoice
	Power         float64
	CastAt        time.Time
	IsAutoVote    bool
	DelegatedFrom string
	Reasoning     string
}

// OwnerWallet is the wallet whose power the vote carries. A delegate casting
// on behalf of a delegator produces a vote owned by the delegator.
func (v Vote) OwnerWallet() string {
	if v.DelegatedFrom != "" {
		return v.DelegatedFrom
	}
	return v.Voter.WalletAddress
}

type VoteStats struct {
	TotalVotes   int
	YesVotes     int
	NoVotes      int
	AbstainVotes int
	TotalPower   float64
	YesPower     float64
	NoPower      float64
	AbstainPower float64
}

// AggregateVoteStats recomputes the tally from scratch. Votes with an unknown
// choice count toward neither bucket nor total.
func AggregateVoteStats(votes []Vote) VoteStats {
	var stats VoteStats
	for _, vote := range votes {
		power := vote.Power
		if power < 0 || math.IsNaN(power) || math.IsInf(power, 0) {
			power = 0
		}
		switch vote.Choice {
		case VoteChoiceYes:
			stats.YesVotes++
			stats.YesPower += power
		case VoteChoiceNo:
			stats.NoVotes++
			stats.NoPower += power
		case VoteChoiceAbstain:
			stats.AbstainVotes++
			stats.AbstainPower += power
		default:
			continue
		}
		stats.TotalVotes++
		stats.TotalPower += power
	}
	return stats
}

// YesPercentage is yes power over total power, 0 when nothing was cast.
func (s VoteStats) YesPercentage() float64 {
	if s.TotalPower <= 0 {
		return 0
	}
	return s.YesPower / s.TotalPower * 100
}

// YesPercentageRounded is the display value with two decimals.
func (s VoteStats) YesPercentageRounded() float64 {
	return math.Round(s.YesPercentage()*100) / 100
}
