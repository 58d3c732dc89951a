package flash

import "log/slog"

// Config holds the programmer configuration.
type Config struct {
	Contract Contract
	// Verify reads every written range back and compares it.
	Verify           bool
	ProgressCallback ProgressCallback
	Logger           *slog.Logger
}

func defaultConfig() Config {
	return Config{
		Contract: NXT(),
		Verify:   true,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithContract replaces the NXT driver contract.
func WithContract(c Contract) Option {
	return func(cfg *Config) {
		cfg.Contract = c
	}
}

// WithVerify enables or disables read-back verification. Default is true.
func WithVerify(verify bool) Option {
	return func(cfg *Config) {
		cfg.Verify = verify
	}
}

// WithProgressCallback sets a callback to track programming progress.
//
// Example:
//
//	prog := flash.New(client,
//	    flash.WithProgressCallback(func(p flash.Progress) {
//	        fmt.Printf("%s %d/%d\n", p.Phase, p.CurrentPage, p.TotalPages)
//	    }),
//	)
func WithProgressCallback(cb ProgressCallback) Option {
	return func(cfg *Config) {
		cfg.ProgressCallback = cb
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.Logger = logger
		}
	}
}
