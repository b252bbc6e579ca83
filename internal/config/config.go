package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultPath is read when no -config flag is given.
const DefaultPath = "jsonjoin.ini"

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DataDir string
}

// DBPath is the SQLite file inside DataDir.
func (s StorageConfig) DBPath() string {
	return filepath.Join(s.DataDir, "jsonjoin.db")
}

// JoinConfig is the one-shot join run by `jsonjoin run`.
type JoinConfig struct {
	LeftFile      string
	RightFile     string
	LeftKey       string
	RightKey      string
	LeftDataPath  string
	RightDataPath string
}

// ReportConfig selects the totals printed after a join.
type ReportConfig struct {
	GroupField string
	SumField   string
	Names      []string
}

// AMQPConfig configures the amqp destination. An empty URL disables it.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// SecretsConfig picks where connection passwords come from.
type SecretsConfig struct {
	Backend   string
	EnvPrefix string
}

type Config struct {
	Path    string // file the values were read from; empty when defaulted
	Storage StorageConfig
	Join    JoinConfig
	Report  ReportConfig
	AMQP    AMQPConfig
	Secrets SecretsConfig
}

// Load reads the INI file at path. A missing file yields the defaults;
// a file that exists but does not parse is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	file := ini.Empty()
	loadedFrom := ""
	if _, err := os.Stat(path); err == nil {
		f, err := ini.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		file = f
		loadedFrom = path
		log.Printf("action: config_load | result: success | file: %s", path)
	} else if errors.Is(err, fs.ErrNotExist) {
		log.Printf("action: config_load | result: defaults | file: %s not found", path)
	} else {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg := fromFile(file)
	cfg.Path = loadedFrom
	return cfg, nil
}

func fromFile(f *ini.File) *Config {
	storage := f.Section("storage")
	join := f.Section("join")
	report := f.Section("report")
	amqp := f.Section("amqp")
	secrets := f.Section("secrets")

	return &Config{
		Storage: StorageConfig{
			DataDir: storage.Key("data_dir").MustString(".jsonjoin"),
		},
		Join: JoinConfig{
			LeftFile:      join.Key("left_file").MustString("customers.json"),
			RightFile:     join.Key("right_file").MustString("orders.json"),
			LeftKey:       join.Key("left_key").MustString("cid"),
			RightKey:      join.Key("right_key").MustString("customer_id"),
			LeftDataPath:  join.Key("left_data_path").String(),
			RightDataPath: join.Key("right_data_path").String(),
		},
		Report: ReportConfig{
			GroupField: report.Key("group_field").MustString("name"),
			SumField:   report.Key("sum_field").MustString("price"),
			Names:      SplitList(report.Key("names").MustString("Barry,Steve")),
		},
		AMQP: AMQPConfig{
			URL:        amqp.Key("url").String(),
			Exchange:   amqp.Key("exchange").MustString("jsonjoin"),
			RoutingKey: amqp.Key("routing_key").MustString("joined_rows"),
		},
		Secrets: SecretsConfig{
			Backend:   secrets.Key("backend").MustString("env"),
			EnvPrefix: secrets.Key("env_prefix").MustString("JSONJOIN_SECRET_"),
		},
	}
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
