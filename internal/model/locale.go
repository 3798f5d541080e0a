package model

import (
	"fmt"
	"sort"
	"strings"
)

// Locale describes the seed alphabet and stopword language of a market
type Locale struct {
	Code             string `yaml:"code"`
	Alphabet         string `yaml:"alphabet"`
	StopwordLanguage string `yaml:"stopword_language"`
}

// Locales is the table of supported locales keyed by code
var Locales = map[string]Locale{
	"en": {Code: "en", Alphabet: "abcdefghijklmnopqrstuvwxyz", StopwordLanguage: "english"},
	"de": {Code: "de", Alphabet: "abcdefghijklmnopqrstuvwxyzäöüß", StopwordLanguage: "german"},
}

// LookupLocale returns the locale for code or a validation error
func LookupLocale(code string) (Locale, error) {
	loc, ok := Locales[strings.ToLower(code)]
	if !ok {
		return Locale{}, &ValidationError{Field: "locale", Value: code, Reason: "supported: " + strings.Join(sortedKeys(Locales), ", ")}
	}
	return loc, nil
}

// Engines the harvester can query. The name doubles as the "marketplace"
// part of raw dump file names.
const (
	EngineMarketplace  = "amazon"
	EngineAuction      = "ebay"
	EngineSearchEngine = "google"
)

var marketplaces = map[string]bool{
	EngineMarketplace:  true,
	EngineAuction:      true,
	EngineSearchEngine: true,
}

// ValidateMarketplace fails fast for unknown marketplaces
func ValidateMarketplace(name string) error {
	if !marketplaces[name] {
		return &ValidationError{Field: "marketplace", Value: name, Reason: "supported: " + strings.Join(sortedKeys(marketplaces), ", ")}
	}
	return nil
}

// auctionSites maps two-letter geo codes to the auction site's market id
var auctionSites = map[string]int{
	"US": 0,
	"CA": 2,
	"UK": 3,
	"FR": 71,
	"DE": 77,
	"IT": 101,
	"ES": 186,
}

// AuctionSiteID maps a geo code to the auction market id. Unknown codes
// fall back to 0 (US).
func AuctionSiteID(geo string) int {
	return auctionSites[strings.ToUpper(geo)]
}

// ValidateAuctionGeo fails fast for geo codes that have no auction market
func ValidateAuctionGeo(geo string) error {
	if _, ok := auctionSites[strings.ToUpper(geo)]; !ok {
		return &ValidationError{Field: "geo", Value: geo, Reason: "supported: " + strings.Join(sortedKeys(auctionSites), ", ")}
	}
	return nil
}

// ValidationError reports an unsupported configuration value
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
