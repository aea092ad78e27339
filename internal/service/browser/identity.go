package browser

import (
	"fmt"
	"math/rand"
)

// Identity is the device fingerprint a session presents.
type Identity struct {
	UserAgent string
	Platform  string
	Width     int
	Height    int
}

type platformProfile struct {
	uaToken  string
	platform string
}

var platforms = []platformProfile{
	{uaToken: "Windows NT 10.0; Win64; x64", platform: "Win32"},
	{uaToken: "Macintosh; Intel Mac OS X 10_15_7", platform: "MacIntel"},
	{uaToken: "X11; Linux x86_64", platform: "Linux x86_64"},
}

var chromeMajors = []int{118, 119, 120, 121, 122, 123, 124}

var viewports = [][2]int{
	{1920, 1080}, {1680, 1050}, {1600, 900}, {1536, 864}, {1440, 900}, {1366, 768},
}

// RandomIdentity picks a plausible desktop Chrome fingerprint.
func RandomIdentity(rng *rand.Rand) Identity {
	p := platforms[rng.Intn(len(platforms))]
	major := chromeMajors[rng.Intn(len(chromeMajors))]
	vp := viewports[rng.Intn(len(viewports))]

	return Identity{
		UserAgent: fmt.Sprintf(
			"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
			p.uaToken, major,
		),
		Platform: p.platform,
		Width:    vp[0],
		Height:   vp[1],
	}
}
