package services

// DefaultLevelThreshold is the XP step between levels: reaching level L+1
// requires L*threshold total XP.
const DefaultLevelThreshold int64 = 500

// LevelCalculator maps accumulated XP to a level. It holds no state beyond
// its threshold and is safe to share.
type LevelCalculator struct {
	Threshold int64
}

func NewLevelCalculator(threshold int64) LevelCalculator {
	if threshold <= 0 {
		threshold = DefaultLevelThreshold
	}
	return LevelCalculator{Threshold: threshold}
}

func (c LevelCalculator) threshold() int64 {
	if c.Threshold <= 0 {
		return DefaultLevelThreshold
	}
	return c.Threshold
}

// Compute adds gained to xp and advances level while the total reaches
// level*threshold. A non-positive gain returns the inputs unchanged.
func (c LevelCalculator) Compute(xp int64, level int, gained int64) (int64, int) {
	if gained <= 0 {
		return xp, level
	}
	if level < 1 {
		level = 1
	}

	newXP := xp + gained
	newLevel := level
	for newXP >= int64(newLevel)*c.threshold() {
		newLevel++
	}
	return newXP, newLevel
}

// NextLevelAt is the total XP at which a user on level advances.
func (c LevelCalculator) NextLevelAt(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(level) * c.threshold()
}
