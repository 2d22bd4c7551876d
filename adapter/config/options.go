package config

type loadOptions struct {
	file      string
	name      string
	paths     []string
	envPrefix string
}

// WithFile reads the configuration from path instead of searching for it.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.file = path
	}
}

// WithName sets the name, without extension, of the file searched for.
// Defaults to "tuicha".
func WithName(name string) Option {
	return func(o *loadOptions) {
		o.name = name
	}
}

// WithPaths sets the directories searched for the configuration file.
func WithPaths(paths ...string) Option {
	return func(o *loadOptions) {
		o.paths = paths
	}
}

// WithEnvPrefix sets the prefix of the environment variables read.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// Option configures [Load] through the functional options pattern.
type Option func(*loadOptions)
