package models

// DashboardStats aggregates submission counts for the admin dashboard.
// Conversion is the percentage of confirmed enrollments over the total.
type DashboardStats struct {
	Today      int `json:"today"`
	Week       int `json:"week"`
	Total      int `json:"total"`
	Conversion int `json:"conversion"`
	Pending    int `json:"pending"`
	InAnalysis int `json:"in_analysis"`
	Confirmed  int `json:"confirmed"`
	Waitlist   int `json:"waitlist"`
	Rejected   int `json:"rejected"`
}
