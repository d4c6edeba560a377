package domain

import "time"

type Label string

const (
	LabelBuy  Label = "BUY"
	LabelSell Label = "SELL"
)

// LabelFromScore maps a model score to a label. A score of exactly zero is SELL.
func LabelFromScore(score float64) Label {
	if score > 0 {
		return LabelBuy
	}
	return LabelSell
}

// Decision is the immutable result of scoring one cycle's feature vector.
type Decision struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	AnchorTime time.Time `json:"anchor_time"`
	DecidedAt  time.Time `json:"decided_at"`
	EntryPrice float64   `json:"entry_price"`
	Label      Label     `json:"label"`
	Score      float64   `json:"score"`
}

type Verdict string

const (
	VerdictCorrect    Verdict = "correct"
	VerdictWrong      Verdict = "wrong"
	VerdictUnverified Verdict = "unverified"
)

// Outcome records how a Decision fared against the realized price.
type Outcome struct {
	Decision      Decision   `json:"decision"`
	Verdict       Verdict    `json:"verdict"`
	RealizedPrice *float64   `json:"realized_price,omitempty"`
	RealizedTime  *time.Time `json:"realized_time,omitempty"`
	VerifiedAt    time.Time  `json:"verified_at"`
	Reason        string     `json:"reason,omitempty"`
}

// Judge compares a realized close with the decision's entry price.
// An unchanged price counts as wrong for either label.
func Judge(d Decision, realizedClose float64) Verdict {
	switch {
	case d.Label == LabelBuy && realizedClose > d.EntryPrice:
		return VerdictCorrect
	case d.Label == LabelSell && realizedClose < d.EntryPrice:
		return VerdictCorrect
	default:
		return VerdictWrong
	}
}
