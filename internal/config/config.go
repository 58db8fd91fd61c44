// Package config reads simulator settings from HCL files with includes,
// then applies environment overrides.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/temoto/fridgesim/helpers"
	"github.com/temoto/fridgesim/internal/credstore"
	"github.com/temoto/fridgesim/internal/telemetry"
	"github.com/temoto/fridgesim/log2"
)

const (
	EnvDeviceID     = "SIMULATOR_DEVICE_ID"
	EnvHost         = "SIMULATOR_HOST"
	EnvShouldPrompt = "SIMULATOR_SHOULD_PROMPT"
	EnvProductID    = "SIMULATOR_PRODUCT_ID"
	EnvPersistRoot  = "SIMULATOR_PERSIST_ROOT"

	DefaultDeviceID      = "1"
	DefaultBaseHost      = "m2.exosite.com"
	DefaultPort          = 443
	DefaultProductIDFile = "prod_id.txt"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Device struct {
		ProductID     string `hcl:"product_id"`
		ProductIDFile string `hcl:"product_id_file"`
		DeviceID      string `hcl:"device_id"`
		BaseHost      string `hcl:"base_host"`
		Port          int    `hcl:"port"`
		Prompt        bool   `hcl:"prompt"`
	}
	Network struct {
		TimeoutSec  int    `hcl:"timeout_sec"`
		ReadLimit   int    `hcl:"read_limit"`
		TLSCAFile   string `hcl:"tls_ca_file"`
		TLSInsecure bool   `hcl:"tls_insecure"`
		LogWire     bool   `hcl:"log_wire"`
	}
	Loop struct {
		TickMs              int    `hcl:"tick_ms"`
		LongPoll            bool   `hcl:"long_poll"`
		LongPollTimeoutMs   int    `hcl:"long_poll_timeout_ms"`
		ActivationRetrySec  int    `hcl:"activation_retry_sec"`
		ActivationNoticeSec int    `hcl:"activation_notice_sec"`
		ClampPolicy         string `hcl:"clamp_policy"`
	}
	Persist struct {
		Root    string `hcl:"root"`
		Backend string `hcl:"backend"`
	}
	Metrics struct {
		Listen string `hcl:"listen"`
	}
	LogDebug bool `hcl:"log_debug"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Default is config before any file is read.
// Fields absent from files keep these values.
func Default() *Config {
	c := &Config{includeSeen: make(map[string]struct{})}
	c.Device.ProductIDFile = DefaultProductIDFile
	c.Device.DeviceID = DefaultDeviceID
	c.Device.BaseHost = DefaultBaseHost
	c.Device.Port = DefaultPort
	c.Device.Prompt = true
	c.Loop.LongPoll = true
	c.Loop.ClampPolicy = string(telemetry.ClampStrict)
	c.Persist.Root = "."
	c.Persist.Backend = credstore.BackendExtremofile
	return c
}

func (c *Config) NetworkTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Network.TimeoutSec, 30*time.Second)
}
func (c *Config) Tick() time.Duration {
	return helpers.IntMillisecondDefault(c.Loop.TickMs, telemetry.DefaultTick)
}
func (c *Config) LongPollTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Loop.LongPollTimeoutMs, 2*time.Second)
}
func (c *Config) ActivationRetry() time.Duration {
	return helpers.IntSecondDefault(c.Loop.ActivationRetrySec, telemetry.DefaultActivationRetry)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// ReadConfig reads names in order on top of Default, later values win.
// Relative includes of OsFullReader resolve against directory of first name.
func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := Default()
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

// Load is ReadConfig, ApplyEnv, ResolveProductID and Validate.
func Load(log *log2.Log, fs FullReader, getenv func(string) string, names ...string) (*Config, error) {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		return nil, err
	}
	if err = c.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	if err = c.ResolveProductID(log, fs); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// LoadDotenv sets process environment from .env file at path.
// Missing file is not an error, existing variables are not overwritten.
func LoadDotenv(log *log2.Log, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Annotatef(err, "dotenv path=%s", path)
	}
	log.Debugf("dotenv loaded path=%s", path)
	return nil
}

// ApplyEnv overrides file values with non-empty environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	if v := env(EnvDeviceID); v != "" {
		c.Device.DeviceID = v
	}
	if v := env(EnvHost); v != "" {
		c.Device.BaseHost = v
	}
	if v := env(EnvProductID); v != "" {
		c.Device.ProductID = v
	}
	if v := env(EnvPersistRoot); v != "" {
		c.Persist.Root = v
	}
	if v := env(EnvShouldPrompt); v != "" {
		if v == "1" {
			c.Device.Prompt = true
		} else if b, err := strconv.ParseBool(v); err == nil {
			c.Device.Prompt = b
		} else {
			c.Device.Prompt = false
		}
	}
	return nil
}

// ResolveProductID reads product id file when product id is not configured.
// Missing file leaves product id empty, Validate reports it.
func (c *Config) ResolveProductID(log *log2.Log, fs FullReader) error {
	if c.Device.ProductID != "" || c.Device.ProductIDFile == "" {
		return nil
	}
	path := fs.Normalize(c.Device.ProductIDFile)
	b, err := fs.ReadAll(path)
	if err != nil {
		return errors.Annotatef(err, "product id file=%s", path)
	}
	if b == nil {
		log.Errorf("product id file not found path=%s", path)
		return nil
	}
	c.Device.ProductID = strings.TrimSpace(strings.Replace(string(b), "\n", "", -1))
	return nil
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Device.ProductID == "" {
		errs = append(errs, errors.NotValidf("device.product_id=empty (set %s or %s)", EnvProductID, c.Device.ProductIDFile))
	}
	if c.Device.DeviceID == "" {
		errs = append(errs, errors.NotValidf("device.device_id=empty"))
	}
	if c.Device.BaseHost == "" {
		errs = append(errs, errors.NotValidf("device.base_host=empty"))
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		errs = append(errs, errors.NotValidf("device.port=%d", c.Device.Port))
	}
	if c.Network.ReadLimit < 0 {
		errs = append(errs, errors.NotValidf("network.read_limit=%d", c.Network.ReadLimit))
	}
	if _, err := telemetry.ParseClampPolicy(c.Loop.ClampPolicy); err != nil {
		errs = append(errs, errors.Annotate(err, "loop"))
	}
	switch c.Persist.Backend {
	case "", credstore.BackendExtremofile, credstore.BackendFile, credstore.BackendMemory:
	default:
		errs = append(errs, errors.NotValidf("persist.backend=%q", c.Persist.Backend))
	}
	return helpers.FoldErrors(errs)
}
