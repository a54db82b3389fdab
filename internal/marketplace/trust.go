package marketplace

import (
	"context"
	"strings"

	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/nostr"
	"github.com/PlutarchsEcho/nostr-dead-drop-lockers/internal/relay"
)

// Each zap receipt counts a flat 1000 sats; parsing the bolt11 amount out
// of the receipt is out of scope.
const satsPerZap = 1000

// TrustScore aggregates reactions and zaps addressed to a vendor pubkey.
type TrustScore struct {
	Pubkey            string `json:"pubkey"`
	PositiveReactions int    `json:"positive_reactions"`
	NegativeReactions int    `json:"negative_reactions"`
	ZapsSats          int64  `json:"zaps_sats"`
	TotalReactions    int    `json:"total_reactions"`
	Score             int    `json:"score"`
}

// TrustScore computes the trust score for a pubkey from kind 7 reactions
// and kind 9735 zap receipts. A "-" reaction counts negative, everything
// else positive. With no reactions the score is a neutral 50.
func (s *Service) TrustScore(ctx context.Context, pubkey string) (*TrustScore, error) {
	events, err := s.relays.Query(ctx,
		relay.Filter{
			Kinds: []int{nostr.KindReaction},
			Tags:  map[string][]string{"p": {pubkey}},
			Limit: 500,
		},
		relay.Filter{
			Kinds: []int{nostr.KindZapReceipt},
			Tags:  map[string][]string{"p": {pubkey}},
			Limit: 200,
		},
	)
	if err != nil {
		return nil, err
	}

	score := &TrustScore{Pubkey: pubkey}
	for _, ev := range events {
		switch ev.Kind {
		case nostr.KindReaction:
			if strings.TrimSpace(ev.Content) == "-" {
				score.NegativeReactions++
			} else {
				score.PositiveReactions++
			}
		case nostr.KindZapReceipt:
			score.ZapsSats += satsPerZap
		}
	}

	score.TotalReactions = score.PositiveReactions + score.NegativeReactions
	zapPoints := int(score.ZapsSats / 1000)

	if score.TotalReactions > 0 {
		score.Score = int(float64(score.PositiveReactions+zapPoints)/float64(score.TotalReactions+zapPoints)*100 + 0.5)
	} else {
		score.Score = 50
	}

	return score, nil
}
