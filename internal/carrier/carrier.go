// Package carrier maps Canadian phone numbers to their email-to-SMS
// gateway by NPA prefix.
package carrier

import "strings"

type Carrier struct {
	Name    string
	Gateway string
}

var carriers = []struct {
	Carrier
	prefixes []string
}{
	{Carrier{Name: "Bell", Gateway: "txt.bell.ca"}, []string{"514", "438", "450", "579"}},
	{Carrier{Name: "Rogers", Gateway: "pcs.rogers.com"}, []string{"416", "647", "437", "905"}},
	{Carrier{Name: "Telus", Gateway: "msg.telus.com"}, []string{"604", "778", "236", "403"}},
	{Carrier{Name: "Videotron", Gateway: "texto.videotron.ca"}, []string{"418", "581", "819", "873"}},
	{Carrier{Name: "Freedom", Gateway: "txt.freedommobile.ca"}, []string{"226", "289", "365"}},
}

// fallback covers area codes with no carrier match.
var fallback = Carrier{Name: "Generic Canada", Gateway: "txt.bell.ca"}

// Clean strips every non-digit rune.
func Clean(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Detect resolves the gateway from the number's area code. Numbers
// shorter than ten digits cannot be resolved at all; anything else gets
// at least the generic gateway.
func Detect(phone string) (Carrier, bool) {
	clean := Clean(phone)
	if len(clean) < 10 {
		return Carrier{}, false
	}
	areaCode := clean[len(clean)-10 : len(clean)-7]
	for _, c := range carriers {
		for _, p := range c.prefixes {
			if p == areaCode {
				return c.Carrier, true
			}
		}
	}
	return fallback, true
}

// Format renders a ten-digit number as (NPA) NXX-XXXX; shorter inputs
// are returned partially formatted, as typed.
func Format(phone string) string {
	p := Clean(phone)
	switch {
	case len(p) <= 3:
		return p
	case len(p) <= 6:
		return "(" + p[:3] + ") " + p[3:]
	default:
		if len(p) > 10 {
			p = p[:10]
		}
		return "(" + p[:3] + ") " + p[3:6] + "-" + p[6:]
	}
}
