package domain

// PaymentMethod is one way a host accepts transfers. Rendered verbatim in
// payment instructions.
type PaymentMethod struct {
	Bank          string `yaml:"bank"`
	AccountName   string `yaml:"account_name"`
	AccountNumber string `yaml:"account_number"`
	Instructions  string `yaml:"instructions"`
}

// FAQ is a canned question/answer pair attached to a property.
type FAQ struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// PropertyOffer is read-only reference data for one listing. MinPrice is the
// negotiation floor and must never be rendered in guest-visible output.
type PropertyOffer struct {
	ID           string  `yaml:"id"`
	HostID       string  `yaml:"host"`
	Name         string  `yaml:"name"`
	Location     string  `yaml:"location"`
	BasePrice    float64 `yaml:"base_price"`
	MinPrice     float64 `yaml:"min_price"`
	MaxPrice     float64 `yaml:"max_price"`
	MaxGuests    int     `yaml:"max_guests"`
	CheckInTime  string  `yaml:"check_in_time"`
	CheckOutTime string  `yaml:"check_out_time"`
	FAQs         []FAQ   `yaml:"faqs"`
}

// Host owns one or more properties and approves payments over chat.
type Host struct {
	ID             string          `yaml:"id"`
	Name           string          `yaml:"name"`
	ChatID         string          `yaml:"chat_id"`
	PaymentMethods []PaymentMethod `yaml:"payment_methods"`
}

// Catalog is the read-only property/host configuration lookup.
type Catalog interface {
	Property(id string) (*PropertyOffer, error)
	Properties() []PropertyOffer
	PropertiesByHost(hostID string) []PropertyOffer
	HostFor(propertyID string) (*Host, error)
	HostByChatID(chatID string) (*Host, error)
}
