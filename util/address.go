package util

import "strings"

// AddressMatches reports whether a dotted address matches a pattern that can
// include the wildcards * (one token) and > (greedy remainder). The bare "*"
// pattern therefore matches any address, which doubles as the broadcast
// marker.
func AddressMatches(pattern, addr string) bool {
	if pattern == addr {
		return true
	}
	pTok := strings.Split(pattern, ".")
	aTok := strings.Split(addr, ".")
	for i, pt := range pTok {
		switch pt {
		case ">":
			return true // matches remainder
		case "*":
			if i >= len(aTok) {
				return false
			}
			continue
		}
		if i >= len(aTok) {
			return false
		}
		if pt != aTok[i] {
			return false
		}
	}
	return len(aTok) == len(pTok)
}

// IsSubAddress reports whether addr falls under parent in the dotted
// hierarchy, e.g. "main.toolbar.search" is a sub-address of "main.toolbar".
func IsSubAddress(parent, addr string) bool {
	if parent == addr {
		return true
	}
	return strings.HasPrefix(addr, parent+".")
}

// JoinAddress builds the canonical "<process>.<panel>" address.
func JoinAddress(process, panel string) string {
	return process + "." + panel
}

// SplitAddress splits an address into its process and panel parts. The panel
// part keeps any further dotted segments.
func SplitAddress(addr string) (process, panel string) {
	if i := strings.Index(addr, "."); i >= 0 {
		return addr[:i], addr[i+1:]
	}
	return addr, ""
}
