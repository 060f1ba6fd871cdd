package models

// Branding is the organization-wide look the page displays.
type Branding struct {
	LogoPath string `json:"logoPath"`
}

// Section is a course section listed on the organization page.
type Section struct {
	ID     int  `json:"sectionID"`
	Active bool `json:"active"`
}
