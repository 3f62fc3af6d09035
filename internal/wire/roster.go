package wire

import "strings"

// RosterDelimiter separates peer addresses in a GROUP_ROSTER body.
const RosterDelimiter = ","

// EncodeRoster joins peer addresses, dropping empty entries.
func EncodeRoster(peers []string) string {
	kept := make([]string, 0, len(peers))
	for _, p := range peers {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, RosterDelimiter)
}

// DecodeRoster splits a roster body in order, skipping empty entries.
func DecodeRoster(s string) []string {
	peers := []string{}
	for _, p := range strings.Split(s, RosterDelimiter) {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
