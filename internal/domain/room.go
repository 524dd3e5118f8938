package domain

import "strings"

// RoomID identifies one call-signaling exchange between two participants.
type RoomID string

// CallRoomID derives the canonical room id for a participant pair. The pair
// is sorted first so both sides compute the same id regardless of who dials.
func CallRoomID(a, b UserID) RoomID {
	if b < a {
		a, b = b, a
	}
	return RoomID(strings.Join([]string{string(a), string(b)}, ":"))
}
