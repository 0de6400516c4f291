package models

import "strings"

// NormalizePlate canonicalizes a recognized plate reading: spaces stripped,
// upper-cased. Hyphens are kept, they are part of the plate text the
// recognizer emits.
func NormalizePlate(plate string) string {
	plate = strings.ReplaceAll(plate, " ", "")
	return strings.ToUpper(plate)
}
