package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/txlanes/internal/services/lane"
)

const (
	defaultLanes    = 8
	defaultLogLevel = "warn"
	maxLanes        = 1024
)

// ErrUsage is returned when the command line does not name exactly one input file.
var ErrUsage = errors.New("expected exactly one input file argument")

type Config struct {
	InputPath  string
	Lanes      int
	LogLevel   string
	JournalDir string
	Sorted     bool
	Buffer     lane.SizingPolicy
}

type ConfigTmp struct {
	LanesStr   string    `yaml:"lanes,omitempty"`
	LogLevel   string    `yaml:"log_level,omitempty"`
	JournalDir string    `yaml:"journal_dir,omitempty"`
	SortedStr  string    `yaml:"sorted,omitempty"`
	Buffer     BufferTmp `yaml:"buffer,omitempty"`
}

type BufferTmp struct {
	MinStr          string `yaml:"min,omitempty"`
	MaxStr          string `yaml:"max,omitempty"`
	BytesPerSlotStr string `yaml:"bytes_per_slot,omitempty"`
}

// Usage describes the command line.
const Usage = "usage: txlanes [-config file.yaml] [-lanes n] [-log-level level] [-journal dir] [-sorted=true|false] <transactions.csv>"

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Lanes:    defaultLanes,
		LogLevel: defaultLogLevel,
		Sorted:   true,
		Buffer:   lane.DefaultSizingPolicy(),
	}
}

// Parse builds the run configuration from command-line arguments (without the program name).
// Values come from defaults, then the optional YAML file, then explicitly set flags.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("txlanes", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "path to yaml config")
	lanes := fs.Int("lanes", defaultLanes, "number of worker lanes")
	logLevel := fs.String("log-level", defaultLogLevel, "log level: debug, info, warn, error")
	journal := fs.String("journal", "", "directory for the client state journal, empty disables it")
	sorted := fs.Bool("sorted", true, "sort output rows by client id")

	if err := fs.Parse(args); err != nil {
		return Config{}, errors.Wrap(err, "parse flags")
	}
	if fs.NArg() != 1 {
		return Config{}, errors.Wrapf(ErrUsage, "got %d", fs.NArg())
	}

	conf := Default()
	if *configPath != "" {
		var err error
		conf, err = getYaml(*configPath, conf)
		if err != nil {
			return Config{}, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "lanes":
			conf.Lanes = *lanes
		case "log-level":
			conf.LogLevel = *logLevel
		case "journal":
			conf.JournalDir = *journal
		case "sorted":
			conf.Sorted = *sorted
		}
	})

	conf.InputPath = fs.Arg(0)

	if err := conf.Validate(); err != nil {
		return Config{}, err
	}

	return conf, nil
}

// Validate checks that every value is usable.
func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.Wrap(ErrUsage, "empty input path")
	}
	if c.Lanes < 1 || c.Lanes > maxLanes {
		return fmt.Errorf("invalid lanes=%d, must be within [1, %d]", c.Lanes, maxLanes)
	}
	if c.Buffer.Min < 1 {
		return fmt.Errorf("invalid buffer min=%d, must be positive", c.Buffer.Min)
	}
	if c.Buffer.Max < c.Buffer.Min {
		return fmt.Errorf("invalid buffer max=%d, must be at least min=%d", c.Buffer.Max, c.Buffer.Min)
	}
	if c.Buffer.BytesPerSlot < 1 {
		return fmt.Errorf("invalid buffer bytes_per_slot=%d, must be positive", c.Buffer.BytesPerSlot)
	}

	return nil
}

func getYaml(path string, conf Config) (Config, error) {
	var c ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read yaml config")
	}
	if err := yaml.Unmarshal(f, &c); err != nil {
		return Config{}, errors.Wrap(err, "decode yaml config")
	}

	if c.LanesStr != "" {
		lanes, err := strconv.Atoi(c.LanesStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'lanes' param in yaml config (must be an integer), error: %w", err)
		}
		conf.Lanes = lanes
	}

	if c.LogLevel != "" {
		conf.LogLevel = c.LogLevel
	}

	if c.JournalDir != "" {
		conf.JournalDir = c.JournalDir
	}

	if c.SortedStr != "" {
		sorted, err := strconv.ParseBool(c.SortedStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'sorted' param in yaml config (must be true or false), error: %w", err)
		}
		conf.Sorted = sorted
	}

	if c.Buffer.MinStr != "" {
		minCap, err := strconv.Atoi(c.Buffer.MinStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'buffer.min' param in yaml config (must be an integer), error: %w", err)
		}
		conf.Buffer.Min = minCap
	}

	if c.Buffer.MaxStr != "" {
		maxCap, err := strconv.Atoi(c.Buffer.MaxStr)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'buffer.max' param in yaml config (must be an integer), error: %w", err)
		}
		conf.Buffer.Max = maxCap
	}

	if c.Buffer.BytesPerSlotStr != "" {
		bytesPerSlot, err := strconv.ParseInt(c.Buffer.BytesPerSlotStr, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect 'buffer.bytes_per_slot' param in yaml config (must be an integer), error: %w", err)
		}
		conf.Buffer.BytesPerSlot = bytesPerSlot
	}

	return conf, nil
}
