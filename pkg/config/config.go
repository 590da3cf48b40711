package config

import (
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Config describes all configuration options
type Config struct {
	Root string `toml:"root" env:"ROOT" default:"." usage:"Project root; all other paths are relative to it"`
	Src  string `toml:"src" env:"SRC" default:"src" usage:"Source folder"`
	Dist string `toml:"dist" env:"DIST" default:"dist" usage:"Build folder"`

	Log struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
	} `toml:"log" env:"LOG"`
	Server struct {
		Address string `toml:"address" env:"ADDRESS" default:"127.0.0.1:3000" usage:"Address of the development server"`
	} `toml:"server" env:"SERVER"`
	Watch struct {
		Lull time.Duration `toml:"lull" env:"LULL" default:"200ms" usage:"How long to wait for more changes before a task runs"`
	} `toml:"watch" env:"WATCH"`
	Manifest struct {
		Write string `toml:"write" env:"WRITE" default:"dist/rev.json" usage:"Where the cache task writes the revision manifest"`
		Read  string `toml:"read" env:"READ" default:"app/rev.json" usage:"Where the rewrite task reads the revision manifest from"`
	} `toml:"manifest" env:"MANIFEST"`
	Styles struct {
		Command string `toml:"command" env:"COMMAND" default:"sass {sourcemap} --load-path={dir} {in}" usage:"Command that compiles a style sheet to stdout"`
	} `toml:"styles" env:"STYLES"`
	Archive struct {
		Format string `toml:"format" env:"FORMAT" default:"zip" usage:"Archive format (zip, tar.xz or tar.br)"`
	} `toml:"archive" env:"ARCHIVE"`
	Notify struct {
		Enabled bool `toml:"enabled" env:"ENABLED" default:"true" usage:"Show desktop notifications for failed tasks"`
	} `toml:"notify" env:"NOTIFY"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

var archiveFormats = map[string]bool{
	"zip":    true,
	"tar.xz": true,
	"tar.br": true,
}

// Loader initializes an empty config object and returns a new Loader for this object. Command
// line flags are handled by cobra, so aconfig only looks at defaults, the file and the environment.
func Loader(file string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "ASSETPIPE",
		Files:     []string{file},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the given file (if it exists) and the environment.
func Load(file string) (*Config, error) {
	cfg, loader := Loader(file)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrapf(err, "failed to load %s", file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if !archiveFormats[cfg.Archive.Format] {
		return eris.Errorf(`Invalid value for archive.format: %s (must be one of zip, tar.xz or tar.br)`, cfg.Archive.Format)
	}

	if cfg.Src == "" || cfg.Dist == "" {
		return eris.New("src and dist must not be empty")
	}

	if filepath.Clean(cfg.Src) == filepath.Clean(cfg.Dist) {
		return eris.Errorf("src and dist both point to %s", cfg.Src)
	}

	if cfg.Manifest.Write == "" || cfg.Manifest.Read == "" {
		return eris.New("manifest.write and manifest.read must not be empty")
	}

	if cfg.Styles.Command == "" {
		return eris.New("styles.command must not be empty")
	}

	if cfg.Watch.Lull < 0 {
		return eris.Errorf("watch.lull must not be negative (got %s)", cfg.Watch.Lull)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// Paths derives the path configuration from the folders.
func (cfg *Config) Paths() Paths {
	return NewPaths(cfg.Root, cfg.Src, cfg.Dist)
}

// ManifestWritePath returns the absolute-or-root-relative path the cache task writes to.
func (cfg *Config) ManifestWritePath() string {
	return cfg.resolve(cfg.Manifest.Write)
}

// ManifestReadPath returns the path the rewrite task reads from.
func (cfg *Config) ManifestReadPath() string {
	return cfg.resolve(cfg.Manifest.Read)
}

// ProjectName is the name of the directory containing the project. Archives are named after it.
func (cfg *Config) ProjectName() (string, error) {
	abs, err := filepath.Abs(cfg.Root)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", cfg.Root)
	}
	return filepath.Base(abs), nil
}

func (cfg *Config) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Root, p)
}
