// Package reps defines the provider registry data model shared by the
// synchronization engine and its store adapters.
//
// An Organization is a registered health-service provider. It owns its
// Locations (the registry calls them "sedes"), and each Location owns the
// Services authorized to operate there. Locations and Services are matched
// across imports by a natural key derived from normalized export fields,
// never by their surrogate IDs.
package reps

import (
	"strings"
	"time"
)

// SiteType distinguishes a provider's principal site from its satellites.
type SiteType string

const (
	SitePrincipal SiteType = "principal"
	SiteSatellite SiteType = "satellite"
)

// Organization is the provider being synchronized.
type Organization struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"` // registration code issued by the regulator
	Name                string    `json:"name"`
	TaxID               string    `json:"taxId,omitempty"`
	ComplexityLevel     string    `json:"complexityLevel,omitempty"`
	LegalRepresentative string    `json:"legalRepresentative,omitempty"`
	Email               string    `json:"email,omitempty"`
	Phone               string    `json:"phone,omitempty"`
	Address             string    `json:"address,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Organization field names accepted by FieldValue. The reference catalog
// lists mandatory fields using these names.
const (
	FieldName                = "name"
	FieldTaxID               = "tax_id"
	FieldComplexityLevel     = "complexity_level"
	FieldLegalRepresentative = "legal_representative"
	FieldEmail               = "email"
	FieldPhone               = "phone"
	FieldAddress             = "address"
)

// FieldValue returns the value of a named organization field.
// The second return is false when the field name is unknown.
func (o Organization) FieldValue(field string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case FieldName:
		return o.Name, true
	case FieldTaxID, "nit":
		return o.TaxID, true
	case FieldComplexityLevel, "level":
		return o.ComplexityLevel, true
	case FieldLegalRepresentative, "representative":
		return o.LegalRepresentative, true
	case FieldEmail:
		return o.Email, true
	case FieldPhone:
		return o.Phone, true
	case FieldAddress:
		return o.Address, true
	default:
		return "", false
	}
}

// Location is a physical site of an organization.
type Location struct {
	ID               string    `json:"id"`
	OrganizationID   string    `json:"organizationId"`
	NaturalKey       string    `json:"naturalKey"`
	RegistrationCode string    `json:"registrationCode"`
	SiteNumber       string    `json:"siteNumber"`
	Name             string    `json:"name"`
	SiteType         SiteType  `json:"siteType"`
	DepartmentCode   string    `json:"departmentCode,omitempty"`
	DepartmentName   string    `json:"departmentName,omitempty"`
	MunicipalityCode string    `json:"municipalityCode,omitempty"`
	MunicipalityName string    `json:"municipalityName,omitempty"`
	Address          string    `json:"address,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Email            string    `json:"email,omitempty"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	UpdatedBy        string    `json:"updatedBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SameContent reports whether two locations carry the same business data.
// Identity, ownership and audit fields are ignored.
func (l Location) SameContent(o Location) bool {
	return l.NaturalKey == o.NaturalKey &&
		l.RegistrationCode == o.RegistrationCode &&
		l.SiteNumber == o.SiteNumber &&
		l.Name == o.Name &&
		l.SiteType == o.SiteType &&
		l.DepartmentCode == o.DepartmentCode &&
		l.DepartmentName == o.DepartmentName &&
		l.MunicipalityCode == o.MunicipalityCode &&
		l.MunicipalityName == o.MunicipalityName &&
		l.Address == o.Address &&
		l.Phone == o.Phone &&
		l.Email == o.Email
}

// Service is an authorized service offered at a Location.
type Service struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	LocationID     string     `json:"locationId"`
	LocationKey    string     `json:"locationKey"`
	NaturalKey     string     `json:"naturalKey"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Group          string     `json:"group,omitempty"`
	EnabledOn      *time.Time `json:"enabledOn,omitempty"`
	ExpiresOn      *time.Time `json:"expiresOn,omitempty"`
	Status         string     `json:"status,omitempty"`
	Modality       string     `json:"modality,omitempty"`
	CreatedBy      string     `json:"createdBy,omitempty"`
	UpdatedBy      string     `json:"updatedBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// SameContent reports whether two services carry the same business data.
func (s Service) SameContent(o Service) bool {
	return s.NaturalKey == o.NaturalKey &&
		s.LocationKey == o.LocationKey &&
		s.Code == o.Code &&
		s.Name == o.Name &&
		s.Group == o.Group &&
		sameDate(s.EnabledOn, o.EnabledOn) &&
		sameDate(s.ExpiresOn, o.ExpiresOn) &&
		s.Status == o.Status &&
		s.Modality == o.Modality
}

// ValidDates reports whether the expiration date, if any, is not before the
// enablement date.
func (s Service) ValidDates() bool {
	if s.EnabledOn == nil || s.ExpiresOn == nil {
		return true
	}
	return !s.ExpiresOn.Before(*s.EnabledOn)
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Date returns t truncated to midnight UTC.
func Date(t time.Time) time.Time {
	u := t.UTC()
	y, m, d := u.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
