// Package location resolves US zip codes to a city and state.
//
// The table is a small static sample covering the areas the board has been
// used in. Unknown zip codes resolve to nothing, which leaves the user
// without a state and therefore unable to browse requests until they pick a
// known code.
package location

import "strings"

// Place is a resolved city and state (two-letter code).
type Place struct {
	City  string
	State string
}

var zipcodes = map[string]Place{
	"98101": {"Seattle", "WA"},
	"98102": {"Seattle", "WA"},
	"98103": {"Seattle", "WA"},
	"98104": {"Seattle", "WA"},
	"98105": {"Seattle", "WA"},
	"98106": {"Seattle", "WA"},
	"98107": {"Seattle", "WA"},
	"98108": {"Seattle", "WA"},
	"98109": {"Seattle", "WA"},
	"98110": {"Bainbridge Island", "WA"},
	"98111": {"Seattle", "WA"},
	"98112": {"Seattle", "WA"},
	"98113": {"Seattle", "WA"},
	"98114": {"Seattle", "WA"},
	"98115": {"Seattle", "WA"},
	"98116": {"Seattle", "WA"},
	"98117": {"Seattle", "WA"},
	"98118": {"Seattle", "WA"},
	"98119": {"Seattle", "WA"},
	"98121": {"Seattle", "WA"},
	"98122": {"Seattle", "WA"},
	"98125": {"Seattle", "WA"},
	"98126": {"Seattle", "WA"},
	"10001": {"New York", "NY"},
	"10002": {"New York", "NY"},
	"10003": {"New York", "NY"},
	"10004": {"New York", "NY"},
	"10005": {"New York", "NY"},
	"10006": {"New York", "NY"},
	"10007": {"New York", "NY"},
	"90001": {"Los Angeles", "CA"},
	"90002": {"Los Angeles", "CA"},
	"60601": {"Chicago", "IL"},
	"60602": {"Chicago", "IL"},
}

// Lookup returns the place for zip, ignoring surrounding whitespace.
func Lookup(zip string) (Place, bool) {
	p, ok := zipcodes[strings.TrimSpace(zip)]
	return p, ok
}

// Zipcodes returns every known zip code. Used by the seeder.
func Zipcodes() []string {
	codes := make([]string, 0, len(zipcodes))
	for code := range zipcodes {
		codes = append(codes, code)
	}
	return codes
}
