package domain

// SupportLevel is the escalation tier handling an issue.
type SupportLevel string

const (
	SupportLevelL1 SupportLevel = "L1"
	SupportLevelL2 SupportLevel = "L2"
	SupportLevelL3 SupportLevel = "L3"
)

var supportLevelRank = map[SupportLevel]int{
	SupportLevelL1: 1,
	SupportLevelL2: 2,
	SupportLevelL3: 3,
}

// Valid reports whether l is a known tier.
func (l SupportLevel) Valid() bool {
	_, ok := supportLevelRank[l]
	return ok
}

// Rank orders tiers; unknown levels rank 0.
func (l SupportLevel) Rank() int {
	return supportLevelRank[l]
}

// Above reports whether l is a strictly higher tier than other.
func (l SupportLevel) Above(other SupportLevel) bool {
	return l.Rank() > other.Rank()
}

// SupportLevels lists all tiers from lowest to highest.
func SupportLevels() []SupportLevel {
	return []SupportLevel{SupportLevelL1, SupportLevelL2, SupportLevelL3}
}
