package domain_test

import (
	"testing"

	"github.com/evetabi/prediction/internal/domain"
)

func TestPrivateBet_TotalParticipants(t *testing.T) {
	b := &domain.PrivateBet{YesCount: 3, NoCount: 2}
	if got := b.TotalParticipants(); got != 5 {
		t.Errorf("TotalParticipants() = %d, want 5", got)
	}
}

func TestPrivateBet_TotalVotes(t *testing.T) {
	b := &domain.PrivateBet{YesVotes: 2, NoVotes: 1}
	if got := b.TotalVotes(); got != 3 {
		t.Errorf("TotalVotes() = %d, want 3", got)
	}
}

func TestPrivateBet_MajorityThreshold(t *testing.T) {
	cases := []struct {
		yes, no int64
		want    int64
	}{
		{3, 2, 3}, // N=5 -> floor(5/2)+1 = 3
		{2, 2, 3}, // N=4 -> floor(4/2)+1 = 3
		{1, 0, 1}, // N=1 -> floor(1/2)+1 = 1
		{3, 3, 4}, // N=6 -> floor(6/2)+1 = 4
	}
	for _, c := range cases {
		b := &domain.PrivateBet{YesCount: c.yes, NoCount: c.no}
		if got := b.MajorityThreshold(); got != c.want {
			t.Errorf("MajorityThreshold() with N=%d = %d, want %d", c.yes+c.no, got, c.want)
		}
	}
}

func TestPrivateBet_IsOpen_IsVoting(t *testing.T) {
	b := &domain.PrivateBet{Status: domain.PrivateBetOpen}
	if !b.IsOpen() {
		t.Error("expected bet to be open")
	}
	if b.IsVoting() {
		t.Error("open bet should not be voting")
	}
	b.Status = domain.PrivateBetVoting
	if b.IsOpen() {
		t.Error("voting bet should not be open")
	}
	if !b.IsVoting() {
		t.Error("expected bet to be voting")
	}
}

func TestPrivateBetParticipant_HasVoted(t *testing.T) {
	p := &domain.PrivateBetParticipant{}
	if p.HasVoted() {
		t.Error("participant with nil vote should not have voted")
	}
	yes := domain.OutcomeYes
	p.Vote = &yes
	if !p.HasVoted() {
		t.Error("participant with a vote should have voted")
	}
}
