// Package cardkey derives the identifier used to correlate a card across
// cubes and the attribute catalog. Every component that compares card
// identity must go through Derive so the rule cannot drift.
package cardkey

// Derive returns the key identifying a logical card: the oracle id when
// present, otherwise the card name. Returns "" when both are empty, which
// callers treat as "no resolvable identity".
func Derive(oracleID, name string) string {
	if oracleID != "" {
		return oracleID
	}
	return name
}
