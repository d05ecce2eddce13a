package importer

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// maxBatchSize keeps a multi-row INSERT of five columns under the
// 65535 bind-parameter limit of the Postgres wire protocol.
const maxBatchSize = 65535 / 5

// Config holds import pipeline settings.
type Config struct {
	EdictPath       string `yaml:"edict_path"       env:"IMPORT_EDICT_PATH"`
	Encoding        string `yaml:"encoding"         env:"IMPORT_ENCODING"          env-default:"euc-jp"`
	ChunkSize       int    `yaml:"chunk_size"       env:"IMPORT_CHUNK_SIZE"        env-default:"65536"`
	BatchSize       int    `yaml:"batch_size"       env:"IMPORT_BATCH_SIZE"        env-default:"1000"`
	SkipUnsequenced bool   `yaml:"skip_unsequenced" env:"IMPORT_SKIP_UNSEQUENCED"`

	TatoebaSentencesPath string `yaml:"tatoeba_sentences_path" env:"IMPORT_TATOEBA_SENTENCES_PATH"`
	TatoebaLinksPath     string `yaml:"tatoeba_links_path"     env:"IMPORT_TATOEBA_LINKS_PATH"`
	TatoebaTagsPath      string `yaml:"tatoeba_tags_path"      env:"IMPORT_TATOEBA_TAGS_PATH"`
	TatoebaLangs         string `yaml:"tatoeba_langs"          env:"IMPORT_TATOEBA_LANGS"     env-default:"cmn,jpn,eng"`

	DryRun bool `yaml:"dry_run" env:"IMPORT_DRY_RUN"`
}

// LoadConfig reads import configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, fmt.Errorf("import config: read %s: %w", path, err)
			}
			return &cfg, nil
		}
		return nil, fmt.Errorf("import config: file %s not found", path)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("import config: read env: %w", err)
	}

	return &cfg, nil
}

// Validate checks numeric limits. Paths are checked when a phase runs.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("import config: chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.BatchSize <= 0 || c.BatchSize > maxBatchSize {
		return fmt.Errorf("import config: batch_size must be in [1, %d], got %d", maxBatchSize, c.BatchSize)
	}
	return nil
}
