package privacy

import (
	"fmt"
	"net"
	"strings"
)

// Sentinel replaces personal fields on anonymized log rows.
const Sentinel = "anonymized"

// AnonymizeIP coarsens an address so it no longer identifies a host:
// IPv4 loses its last octet, IPv6 its last four groups. Unparseable
// input passes through unchanged.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}

	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		parts[3] = "0"
		return strings.Join(parts, ".")
	}

	v6 := parsed.To16()
	groups := make([]string, 4)
	for i := 0; i < 4; i++ {
		groups[i] = fmt.Sprintf("%x", uint16(v6[2*i])<<8|uint16(v6[2*i+1]))
	}
	return strings.Join(groups, ":") + ":0:0:0:0"
}
