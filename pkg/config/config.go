package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/EinBexiii/dragonfly-buildsystem/pkg/types"
	"github.com/EinBexiii/dragonfly-buildsystem/pkg/world"
)

// MaxBackupsCap bounds world.backup.max_backups_per_world.
const MaxBackupsCap = 18

type Config struct {
	World       WorldConfig       `toml:"world"`
	Paths       PathsConfig       `toml:"paths"`
	Logging     LoggingConfig     `toml:"logging"`
	Performance PerformanceConfig `toml:"performance"`
	Permissions PermissionsConfig `toml:"permissions"`
	Server      ServerConfig      `toml:"server"`
}

type WorldConfig struct {
	Unload            UnloadConfig    `toml:"unload"`
	Backup            BackupConfig    `toml:"backup"`
	Default           DefaultsConfig  `toml:"default"`
	MaxAmount         MaxAmountConfig `toml:"max_amount"`
	ImportAllDelay    int             `toml:"import_all_delay"`
	DeletionBlacklist []string        `toml:"deletion_blacklist"`
	InvalidCharacters string          `toml:"invalid_characters"`
	CreatorIsBuilder  bool            `toml:"creator_is_builder"`
}

type UnloadConfig struct {
	Enabled           bool     `toml:"enabled"`
	TimeUntilUnload   string   `toml:"time_until_unload"`
	BlacklistedWorlds []string `toml:"blacklisted_worlds"`
}

type BackupConfig struct {
	MaxBackupsPerWorld int              `toml:"max_backups_per_world"`
	Storage            StorageConfig    `toml:"storage"`
	AutoBackup         AutoBackupConfig `toml:"auto_backup"`
}

type StorageConfig struct {
	Type  string      `toml:"type"`
	Local LocalConfig `toml:"local"`
	S3    S3Config    `toml:"s3"`
	SFTP  SFTPConfig  `toml:"sftp"`
}

type LocalConfig struct {
	Path string `toml:"path"`
}

type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
}

type SFTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// KeyFile is an optional private key used instead of the password.
	KeyFile string `toml:"key_file"`
	// KnownHosts is checked when set; otherwise any host key is accepted.
	KnownHosts string `toml:"known_hosts"`
	BasePath   string `toml:"base_path"`
}

type AutoBackupConfig struct {
	Enabled          bool `toml:"enabled"`
	Interval         int  `toml:"interval"`
	OnlyActiveWorlds bool `toml:"only_active_worlds"`
}

// DefaultsConfig holds the initial values of newly created worlds.
type DefaultsConfig struct {
	Difficulty      string            `toml:"difficulty"`
	WorldBorderSize int               `toml:"world_border_size"`
	Time            int               `toml:"time"`
	Permission      PermissionDefault `toml:"permission"`
	Settings        SettingsDefault   `toml:"settings"`
	GameRules       map[string]bool   `toml:"game_rules"`
}

type PermissionDefault struct {
	Public  string `toml:"public"`
	Private string `toml:"private"`
}

type SettingsDefault struct {
	Physics           bool                  `toml:"physics"`
	Explosions        bool                  `toml:"explosions"`
	MobAI             bool                  `toml:"mob_ai"`
	BlockBreaking     bool                  `toml:"block_breaking"`
	BlockPlacement    bool                  `toml:"block_placement"`
	BlockInteractions bool                  `toml:"block_interactions"`
	BuildersEnabled   BuildersEnabledConfig `toml:"builders_enabled"`
}

type BuildersEnabledConfig struct {
	Public  bool `toml:"public"`
	Private bool `toml:"private"`
}

type MaxAmountConfig struct {
	Public  int `toml:"public"`
	Private int `toml:"private"`
}

type PathsConfig struct {
	WorldContainer string `toml:"world_container"`
	DataDir        string `toml:"data_dir"`
	StorageType    string `toml:"storage_type"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	LogUnloads bool   `toml:"log_unloads"`
}

type PerformanceConfig struct {
	BackupWorkers   int `toml:"backup_workers"`
	BackupQueueSize int `toml:"backup_queue_size"`
	TickRate        int `toml:"tick_rate"`
}

// PermissionsConfig grants permission nodes to players by name or uuid.
// Operators hold every node.
type PermissionsConfig struct {
	Operators []string            `toml:"operators"`
	Players   map[string][]string `toml:"players"`
}

type ServerConfig struct {
	Address string `toml:"address"`
	Name    string `toml:"name"`
}

func DefaultConfig() Config {
	return Config{
		World: WorldConfig{
			Unload: UnloadConfig{
				Enabled:           true,
				TimeUntilUnload:   "01:00:00",
				BlacklistedWorlds: []string{"world", "world_nether", "world_the_end"},
			},
			Backup: BackupConfig{
				MaxBackupsPerWorld: 5,
				Storage: StorageConfig{
					Type:  "local",
					Local: LocalConfig{Path: "backups"},
					S3:    S3Config{Region: "us-east-1", Prefix: "backups/", Secure: true},
					SFTP:  SFTPConfig{Port: 22, BasePath: "backups/"},
				},
				AutoBackup: AutoBackupConfig{
					Enabled:          false,
					Interval:         900,
					OnlyActiveWorlds: true,
				},
			},
			Default: DefaultsConfig{
				Difficulty:      "PEACEFUL",
				WorldBorderSize: 6_000_000,
				Time:            6000,
				Permission: PermissionDefault{
					Public:  "-",
					Private: "worlds.%world%",
				},
				Settings: SettingsDefault{
					Physics:           true,
					Explosions:        true,
					MobAI:             true,
					BlockBreaking:     true,
					BlockPlacement:    true,
					BlockInteractions: true,
					BuildersEnabled:   BuildersEnabledConfig{Public: false, Private: true},
				},
				GameRules: map[string]bool{
					"doDaylightCycle": false,
					"doMobSpawning":   false,
					"doFireTick":      false,
				},
			},
			MaxAmount:         MaxAmountConfig{Public: -1, Private: -1},
			ImportAllDelay:    30,
			DeletionBlacklist: []string{"world", "world_nether", "world_the_end"},
			InvalidCharacters: `[^A-Za-z0-9/._-]`,
		},
		Paths: PathsConfig{
			WorldContainer: "worlds",
			DataDir:        "buildsystem",
			StorageType:    "yaml",
		},
		Logging: LoggingConfig{Level: "info"},
		Performance: PerformanceConfig{
			BackupWorkers:   2,
			BackupQueueSize: 64,
			TickRate:        20,
		},
		Permissions: PermissionsConfig{Players: map[string][]string{}},
		Server:      ServerConfig{Address: ":19132", Name: "BuildSystem"},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadOrDefault(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	cfg := DefaultConfig()
	return &cfg
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) Validate() error {
	var errs types.ValidationErrors
	if _, err := ParseClock(c.World.Unload.TimeUntilUnload); err != nil {
		errs.Add("world.unload.time_until_unload", err.Error())
	}
	if _, ok := world.ParseDifficulty(c.World.Default.Difficulty); !ok {
		errs.Add("world.default.difficulty", fmt.Sprintf("unknown difficulty %q", c.World.Default.Difficulty))
	}
	if _, err := regexp.Compile(c.World.InvalidCharacters); err != nil {
		errs.Add("world.invalid_characters", err.Error())
	}
	if !slices.Contains([]string{"yaml", "leveldb", "memory"}, c.Paths.StorageType) {
		errs.Add("paths.storage_type", fmt.Sprintf("unknown storage type %q", c.Paths.StorageType))
	}
	if c.World.Backup.AutoBackup.Interval <= 0 {
		errs.Add("world.backup.auto_backup.interval", "must be positive")
	}
	if c.World.ImportAllDelay < 0 {
		errs.Add("world.import_all_delay", "must not be negative")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ParseClock parses an HH:mm:ss duration. Hours may exceed 23.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:mm:ss, got %q", s)
	}
	var total int
	for i, unit := range []int{3600, 60, 1} {
		n, err := strconv.Atoi(parts[i])
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("expected HH:mm:ss, got %q", s)
		}
		total += n * unit
	}
	return time.Duration(total) * time.Second, nil
}

// UnloadAfter falls back to one hour when the configured clock is malformed.
func (c *Config) UnloadAfter() time.Duration {
	d, err := ParseClock(c.World.Unload.TimeUntilUnload)
	if err != nil {
		return time.Hour
	}
	return d
}

func (c *Config) MaxBackups() int {
	return max(0, min(c.World.Backup.MaxBackupsPerWorld, MaxBackupsCap))
}

func (c *Config) MaxWorlds(v world.Visibility) int {
	if v == world.VisibilityPrivate {
		return c.World.MaxAmount.Private
	}
	return c.World.MaxAmount.Public
}

func (c *Config) ImportDelay() time.Duration {
	return time.Duration(c.World.ImportAllDelay) * time.Second
}

func (c *Config) AutoBackupInterval() time.Duration {
	return time.Duration(c.World.Backup.AutoBackup.Interval) * time.Second
}

func (c *Config) IsUnloadBlacklisted(name string) bool {
	return containsFold(c.World.Unload.BlacklistedWorlds, name)
}

func (c *Config) IsDeletionBlacklisted(name string) bool {
	return containsFold(c.World.DeletionBlacklist, name)
}

func (c *Config) InvalidCharacters() *regexp.Regexp {
	re, err := regexp.Compile(c.World.InvalidCharacters)
	if err != nil {
		return regexp.MustCompile(`[^A-Za-z0-9/._-]`)
	}
	return re
}

// WorldDefaults converts the default section into the values applied to new
// worlds.
func (c *Config) WorldDefaults() world.Defaults {
	d := c.World.Default
	difficulty, _ := world.ParseDifficulty(d.Difficulty)
	return world.Defaults{
		PublicPermission:       d.Permission.Public,
		PrivatePermission:      d.Permission.Private,
		Difficulty:             difficulty,
		Physics:                d.Settings.Physics,
		Explosions:             d.Settings.Explosions,
		MobAI:                  d.Settings.MobAI,
		BlockBreaking:          d.Settings.BlockBreaking,
		BlockPlacement:         d.Settings.BlockPlacement,
		BlockInteractions:      d.Settings.BlockInteractions,
		PublicBuildersEnabled:  d.Settings.BuildersEnabled.Public,
		PrivateBuildersEnabled: d.Settings.BuildersEnabled.Private,
		CreatorIsBuilder:       c.World.CreatorIsBuilder,
	}
}

func containsFold(list []string, name string) bool {
	return slices.ContainsFunc(list, func(s string) bool { return strings.EqualFold(s, name) })
}
