package config

// Mode selects the operating mode that gates Auth, Session Store, and
// Billing/Credit behavior throughout the system (spec.md §4.6, §4.7, §4.8).
type Mode string

const (
	ModeProduction Mode = "production"
	ModeLocal      Mode = "local"
)

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	return m == ModeProduction || m == ModeLocal
}
