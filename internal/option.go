package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	// out receives command output of the offline commands.
	out io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where offline commands print their results.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}
