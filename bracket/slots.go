package bracket

import "math/bits"

// ParentSlot maps a match's tree position to the parent match it feeds and
// the slot it fills there: parent = matchNumber/2, odd numbers feed slot 1,
// even numbers feed slot 2. The parity rule is applied uniformly across all
// rounds; it is isolated here so it can be verified on its own.
func ParentSlot(matchNumber int) (parent int, slot int) {
	parent = matchNumber / 2
	if matchNumber%2 == 1 {
		slot = 1
	} else {
		slot = 2
	}
	return parent, slot
}

// LevelOf derives the round of a match from its tree position: the root
// (number 1) is the final at level 5, the 16 leaves (16..31) play level 1.
func LevelOf(matchNumber int) int {
	return rounds + 1 - bits.Len(uint(matchNumber))
}

// IsFinal reports whether the match is the root of the bracket
func IsFinal(matchNumber int) bool {
	return matchNumber == 1
}
