package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type Config struct {
	ListenAddress string       `toml:"ListenAddress"`
	DataDir       string       `toml:"DataDir"`
	Backend       string       `toml:"Backend"`
	Env           string       `toml:"Env"`
	LogFile       string       `toml:"LogFile,omitempty"`
	GatewayConfig string       `toml:"GatewayConfig,omitempty"`
	OwnerKeyFile  string       `toml:"OwnerKeyFile,omitempty"`
	Economics     Economics    `toml:"economics"`
	Schedule      Schedule     `toml:"schedule"`
	Roles         Roles        `toml:"roles"`
	Genesis       []Allocation `toml:"genesis"`
}

// Load loads the configuration from the given path. A missing file is
// replaced by a freshly generated default.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = "leveldb"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if cfg.Genesis == nil {
		cfg.Genesis = []Allocation{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// createDefault generates an owner key next to the config file and writes a
// single-operator configuration where the owner holds every role.
func createDefault(path string) (*Config, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	keyPath := defaultOwnerKeyPath(path)
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
		return nil, err
	}
	if err := ethcrypto.SaveECDSA(keyPath, key); err != nil {
		return nil, err
	}
	owner := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	cfg := &Config{
		ListenAddress: ":8080",
		DataDir:       "./roundledger-data",
		Backend:       "leveldb",
		Env:           "dev",
		OwnerKeyFile:  keyPath,
		Economics: Economics{
			StakeValue:   "1000",
			GasFeeBps:    10,
			RewardFeeBps: 50,
			MaxProfiles:  MaxProfilesCap,
			FirstNFree:   5,
		},
		Schedule: Schedule{
			GenesisTime:   time.Now().Unix(),
			OpenSeconds:   3600,
			FreezeSeconds: 1800,
			GapSeconds:    7200,
		},
		Roles:   Roles{Owner: owner, App: owner, Wallet: owner},
		Genesis: []Allocation{},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultOwnerKeyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "owner.key")
}
