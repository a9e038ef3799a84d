package reps

import "strings"

// KeySeparator joins the components of a natural key.
const KeySeparator = "_"

// LocationKey builds the natural key of a location from its registration
// code and site number. Each component is trimmed before joining, so
// surrounding whitespace on either input can never reach the key, and a
// numeric site number loses its leading zeros ("01" and "1" are one site).
// Returns "" if either component is empty after trimming.
func LocationKey(registrationCode, siteNumber string) string {
	code := strings.TrimSpace(registrationCode)
	site := CanonicalSite(siteNumber)
	if code == "" || site == "" {
		return ""
	}
	return code + KeySeparator + site
}

// CanonicalSite trims a site number and strips leading zeros when it is all
// digits. Non-numeric site numbers are only trimmed.
func CanonicalSite(siteNumber string) string {
	site := strings.TrimSpace(siteNumber)
	if site == "" || strings.TrimLeft(site, "0123456789") != "" {
		return site
	}
	if trimmed := strings.TrimLeft(site, "0"); trimmed != "" {
		return trimmed
	}
	return "0"
}

// ServiceKey builds the natural key of a service from the natural key of its
// location and the service code.
func ServiceKey(locationKey, serviceCode string) string {
	loc := strings.TrimSpace(locationKey)
	code := strings.TrimSpace(serviceCode)
	if loc == "" || code == "" {
		return ""
	}
	return loc + KeySeparator + code
}

// CanonicalKey re-derives the key a location should carry from its stored
// components.
func (l Location) CanonicalKey() string {
	return LocationKey(l.RegistrationCode, l.SiteNumber)
}

// CanonicalKey re-derives the key a service should carry. locationKey is the
// canonical key of the owning location.
func (s Service) CanonicalKey(locationKey string) string {
	return ServiceKey(locationKey, s.Code)
}
