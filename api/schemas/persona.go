package schemas

// -- Browser Identity Models --
// A Persona is the browser-version identity a session presents to servers:
// user agent, language preferences and viewport. Engines use it to populate
// request headers and the navigator object; the crawl core treats it as
// opaque configuration.

// Persona describes the emulated browser identity for a session.
type Persona struct {
	Name      string   `json:"name" mapstructure:"name"`
	UserAgent string   `json:"user_agent" mapstructure:"user_agent"`
	Platform  string   `json:"platform" mapstructure:"platform"`
	Languages []string `json:"languages" mapstructure:"languages"`
	Timezone  string   `json:"timezone" mapstructure:"timezone"`
	Locale    string   `json:"locale" mapstructure:"locale"`
	Width     int      `json:"width" mapstructure:"width"`
	Height    int      `json:"height" mapstructure:"height"`
}

// DefaultPersona is used whenever the caller does not pick an identity.
var DefaultPersona = ChromePersona

// ChromePersona emulates a current desktop Chrome on Linux.
var ChromePersona = Persona{
	Name:      "chrome-linux",
	UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Linux x86_64",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
}

// FirefoxPersona emulates a current desktop Firefox on Windows.
var FirefoxPersona = Persona{
	Name:      "firefox-windows",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/New_York",
	Locale:    "en-US",
	Width:     1920,
	Height:    1080,
}

// PersonaByName returns the named preset, falling back to DefaultPersona for
// unknown names.
func PersonaByName(name string) Persona {
	switch name {
	case ChromePersona.Name:
		return ChromePersona
	case FirefoxPersona.Name:
		return FirefoxPersona
	default:
		return DefaultPersona
	}
}
