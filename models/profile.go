package models

// ProfileRecord is the company-profile payload used for sector mapping.
// Only some venues can serve it.
type ProfileRecord struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Industry string `json:"industry,omitempty"`
	Source   string `json:"source,omitempty"`
}

// IsValid reports whether the profile carries enough classification data to
// be worth memoizing.
func (p ProfileRecord) IsValid() bool {
	return p.Sector != "" || p.Industry != ""
}
