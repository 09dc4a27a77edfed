package lattice

// Config carries service-level policy.
type Config struct {
	// AllowedEmailDomain restricts registration to addresses under one
	// domain, e.g. "example.org". Empty allows any address.
	AllowedEmailDomain string
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{}
}
