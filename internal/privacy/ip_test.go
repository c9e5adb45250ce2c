package privacy

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4", "203.0.113.42", "203.0.113.0"},
		{"ipv4 already zero", "203.0.113.0", "203.0.113.0"},
		{"ipv4 loopback", "127.0.0.1", "127.0.0.0"},
		{"ipv6", "2001:db8:85a3:8d3:1319:8a2e:370:7348", "2001:db8:85a3:8d3:0:0:0:0"},
		{"ipv6 compressed", "2001:db8::1", "2001:db8:0:0:0:0:0:0"},
		{"garbage passes through", "not-an-ip", "not-an-ip"},
		{"empty passes through", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.in))
		})
	}
}

func TestProperty_AnonymizeIPIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	octet := gen.IntRange(0, 255)
	properties.Property("anonymizing twice equals anonymizing once", prop.ForAll(
		func(a, b, c, d int) bool {
			ip := AnonymizeIP(ipv4(a, b, c, d))
			return AnonymizeIP(ip) == ip
		},
		octet, octet, octet, octet,
	))

	properties.Property("anonymized ipv4 ends in .0", prop.ForAll(
		func(a, b, c, d int) bool {
			out := AnonymizeIP(ipv4(a, b, c, d))
			return len(out) >= 2 && out[len(out)-2:] == ".0"
		},
		octet, octet, octet, octet,
	))

	properties.TestingRun(t)
}

func ipv4(a, b, c, d int) string {
	return fmt.Sprintf("%d.%d.%d.%d", a, b, c, d)
}
