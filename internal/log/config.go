package log

const (
	EncodingJSON    = "json"
	EncodingConsole = "console"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

type Config struct {
	// Name is attached to every entry as the "service" field.
	Name string `conf:"name" yaml:"name" json:"name"`

	// Level is one of debug, info, warn, error.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Encoding is json or console.
	Encoding string `conf:"encoding" yaml:"encoding" json:"encoding"`

	// Output is stdout, stderr or file.
	Output string `conf:"output" yaml:"output" json:"output"`

	File FileConfig `conf:"file" yaml:"file" json:"file"`

	// IncludeStacktrace adds stack traces to error entries.
	IncludeStacktrace bool `conf:"include_stacktrace" yaml:"include_stacktrace" json:"include_stacktrace"`
}

// FileConfig configures rotating file output.
type FileConfig struct {
	Path       string `conf:"path" yaml:"path" json:"path"`
	MaxSizeMB  int    `conf:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	MaxAgeDays int    `conf:"max_age_days" yaml:"max_age_days" json:"max_age_days"`
	MaxBackups int    `conf:"max_backups" yaml:"max_backups" json:"max_backups"`
	Compress   bool   `conf:"compress" yaml:"compress" json:"compress"`
}

func DefaultConfig() Config {
	return Config{
		Name:     "lifeline",
		Level:    "info",
		Encoding: EncodingJSON,
		Output:   OutputStdout,
		File: FileConfig{
			Path:       "logs/lifeline.log",
			MaxSizeMB:  100,
			MaxAgeDays: 7,
			MaxBackups: 5,
		},
	}
}
