package profile

import "time"

type BasicDetails struct {
	Salutation      string `json:"salutation,omitempty"`
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	Email           string `json:"email,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

type AdditionalDetails struct {
	Address       string `json:"address,omitempty"`
	Country       string `json:"country,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	DOB           string `json:"dob,omitempty"`
	Gender        string `json:"gender,omitempty"`
	MaritalStatus string `json:"maritalStatus,omitempty"`
}

type SpouseDetails struct {
	Salutation string `json:"salutation,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

type Preferences struct {
	Hobbies string `json:"hobbies,omitempty"`
	Sports  string `json:"sports,omitempty"`
	Music   string `json:"music,omitempty"`
	Movies  string `json:"movies,omitempty"`
}

type Profile struct {
	UserID            string            `json:"userId"`
	BasicDetails      BasicDetails      `json:"basicDetails"`
	AdditionalDetails AdditionalDetails `json:"additionalDetails"`
	SpouseDetails     SpouseDetails     `json:"spouseDetails"`
	Preferences       Preferences       `json:"preferences"`
	CreatedAt         time.Time         `json:"createdAt,omitzero"`
	UpdatedAt         time.Time         `json:"updatedAt,omitzero"`
}

type Input struct {
	BasicDetails      BasicDetails      `json:"basicDetails"`
	AdditionalDetails AdditionalDetails `json:"additionalDetails"`
	SpouseDetails     SpouseDetails     `json:"spouseDetails"`
	Preferences       Preferences       `json:"preferences"`
}
