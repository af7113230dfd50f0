package internal

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/tuannm99/novasql/internal/storage"
)

type NovaSqlConfig struct {
	Storage struct {
		Mode     string `mapstructure:"mode"`
		File     string `mapstructure:"file"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`
	Server struct {
		Port  int  `mapstructure:"port"`
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
	Elru ElruConfig `mapstructure:"elru"`
}

// ElruConfig controls the ELRU buffer replacement engine: how many frames
// the shared pool holds, and how large each ring strategy's kilobyte budget
// is. Zero values mean "use the pkg/elrux default for that ring kind".
type ElruConfig struct {
	PoolCapacity int `mapstructure:"pool_capacity"`

	RingBulkReadKB  int `mapstructure:"ring_bulkread_kb"`
	RingBulkWriteKB int `mapstructure:"ring_bulkwrite_kb"`
	RingVacuumKB    int `mapstructure:"ring_vacuum_kb"`
}

type Config struct {
	Mode storage.StorageMode
}

func LoadConfig(path string) (*NovaSqlConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg NovaSqlConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}
