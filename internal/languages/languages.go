// Package languages holds the fixed set of languages the cloning model can
// speak, keyed by display name and by model language code.
package languages

import "strings"

// Language pairs a human readable name with the code the model expects.
type Language struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

var supported = []Language{
	{Name: "English", Code: "en"},
	{Name: "Spanish", Code: "es"},
	{Name: "French", Code: "fr"},
	{Name: "German", Code: "de"},
	{Name: "Italian", Code: "it"},
	{Name: "Portuguese", Code: "pt"},
	{Name: "Polish", Code: "pl"},
	{Name: "Turkish", Code: "tr"},
	{Name: "Russian", Code: "ru"},
	{Name: "Dutch", Code: "nl"},
	{Name: "Czech", Code: "cs"},
	{Name: "Arabic", Code: "ar"},
	{Name: "Chinese (Simplified)", Code: "zh-cn"},
	{Name: "Japanese", Code: "ja"},
	{Name: "Hungarian", Code: "hu"},
	{Name: "Korean", Code: "ko"},
	{Name: "Hindi", Code: "hi"},
}

// All returns the supported languages in display order.
func All() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// Codes returns the model language codes in display order.
func Codes() []string {
	codes := make([]string, 0, len(supported))
	for _, l := range supported {
		codes = append(codes, l.Code)
	}
	return codes
}

// Lookup resolves a display name or a language code. Exact names win over
// case-insensitive matches.
func Lookup(value string) (Language, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Language{}, false
	}
	for _, l := range supported {
		if l.Name == value {
			return l, true
		}
	}
	for _, l := range supported {
		if strings.EqualFold(l.Name, value) || strings.EqualFold(l.Code, value) {
			return l, true
		}
	}
	return Language{}, false
}
