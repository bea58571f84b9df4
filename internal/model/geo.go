package model

// Location is the embedded location block returned with cash offers
type Location struct {
	City     string `json:"city"`
	CityCode string `json:"city_code"`
	Country  string `json:"country"`
}
