package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"
	"github.com/xiaonanln/gwrepl/engine/consts"
	"github.com/xiaonanln/gwrepl/engine/gwlog"
	"gopkg.in/yaml.v3"
)

const (
	_DEFAULT_CONFIG_FILE     = "gwrepl.ini"
	_DEFAULT_LISTEN_ADDR     = "127.0.0.1:14001"
	_DEFAULT_WS_PATH         = "/ws"
	_DEFAULT_BUFFER_SIZE     = 4096
	_DEFAULT_LOG_LEVEL       = "debug"
	_DEFAULT_LOG_FILE        = "gwrepl.log"
	_DEFAULT_TICK_INTERVAL   = consts.DEFAULT_TICK_INTERVAL
	_DEFAULT_WARN_TICK_DELAY = consts.DEFAULT_WARN_TICK_DURATION
)

var (
	configFilePath = _DEFAULT_CONFIG_FILE
	gwreplConfig   *GWReplConfig
	configLock     sync.Mutex
)

// ReplicationConfig defines fields of the replication engine
type ReplicationConfig struct {
	LocalPlayerAuthority bool          // grant authority to an object when it becomes the local player
	HostClient           bool          // the host also acts as a client sharing object instances
	TickInterval         time.Duration // interval between two replication ticks
	WarnTickDuration     time.Duration // tick duration that triggers a warning
}

// HostConfig defines fields of the websocket host
type HostConfig struct {
	ListenAddr      string
	WSPath          string
	ReadBufferSize  int
	WriteBufferSize int
}

// LogConfig defines fields of logging
type LogConfig struct {
	Level  string
	File   string
	Stderr bool
}

// GWReplConfig defines the total config file structure
type GWReplConfig struct {
	Replication ReplicationConfig
	Host        HostConfig
	Log         LogConfig
}

// SetConfigFile sets the config file path (gwrepl.ini by default)
//
// Files ending with .yaml or .yml are read as YAML with the same sections and keys.
func SetConfigFile(f string) {
	configFilePath = f
}

// GetConfigDir returns the directory of the config file
func GetConfigDir() string {
	dir, _ := path.Split(configFilePath)
	return dir
}

// GetConfigFilePath returns the config file path
func GetConfigFilePath() string {
	return configFilePath
}

// Get returns the total config
func Get() *GWReplConfig {
	configLock.Lock()
	defer configLock.Unlock()
	if gwreplConfig == nil {
		gwreplConfig = readGWReplConfig()
	}
	return gwreplConfig
}

// Reload forces to reload the whole config
func Reload() *GWReplConfig {
	configLock.Lock()
	gwreplConfig = nil
	configLock.Unlock()

	return Get()
}

// GetReplication returns the replication config
func GetReplication() *ReplicationConfig {
	return &Get().Replication
}

// GetHost returns the host config
func GetHost() *HostConfig {
	return &Get().Host
}

// GetLog returns the log config
func GetLog() *LogConfig {
	return &Get().Log
}

// DumpPretty format config to string in pretty format
func DumpPretty(cfg interface{}) string {
	s, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return err.Error()
	}
	return string(s)
}

func readGWReplConfig() *GWReplConfig {
	config := GWReplConfig{}
	setDefaults(&config)

	gwlog.Infof("Using config file: %s", configFilePath)
	iniFile, err := loadConfigFile(configFilePath)
	checkConfigError(err, "")

	for _, sec := range iniFile.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}

		secName := strings.ToLower(sec.Name())

		if secName == "replication" {
			readReplicationConfig(sec, &config.Replication)
		} else if secName == "host" {
			readHostConfig(sec, &config.Host)
		} else if secName == "log" {
			readLogConfig(sec, &config.Log)
		} else {
			gwlog.Errorf("unknown section: %s", secName)
		}
	}

	validateConfig(&config)
	return &config
}

func loadConfigFile(file string) (*ini.File, error) {
	ext := strings.ToLower(filepath.Ext(file))
	if ext != ".yaml" && ext != ".yml" {
		return ini.Load(file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read yaml config")
	}
	return yamlToIni(data)
}

// yamlToIni converts a two-level YAML document into ini sections so both formats share the key readers
func yamlToIni(data []byte) (*ini.File, error) {
	var doc map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "parse yaml config")
	}

	iniFile := ini.Empty()
	secNames := make([]string, 0, len(doc))
	for name := range doc {
		secNames = append(secNames, name)
	}
	sort.Strings(secNames)

	for _, secName := range secNames {
		sec, err := iniFile.NewSection(secName)
		if err != nil {
			return nil, errors.Wrapf(err, "yaml section %s", secName)
		}
		keys := doc[secName]
		keyNames := make([]string, 0, len(keys))
		for k := range keys {
			keyNames = append(keyNames, k)
		}
		sort.Strings(keyNames)
		for _, k := range keyNames {
			if _, err := sec.NewKey(k, fmt.Sprint(keys[k])); err != nil {
				return nil, errors.Wrapf(err, "yaml key %s.%s", secName, k)
			}
		}
	}
	return iniFile, nil
}

func setDefaults(config *GWReplConfig) {
	config.Replication = ReplicationConfig{
		LocalPlayerAuthority: true,
		HostClient:           false,
		TickInterval:         _DEFAULT_TICK_INTERVAL,
		WarnTickDuration:     _DEFAULT_WARN_TICK_DELAY,
	}
	config.Host = HostConfig{
		ListenAddr:      _DEFAULT_LISTEN_ADDR,
		WSPath:          _DEFAULT_WS_PATH,
		ReadBufferSize:  _DEFAULT_BUFFER_SIZE,
		WriteBufferSize: _DEFAULT_BUFFER_SIZE,
	}
	config.Log = LogConfig{
		Level:  _DEFAULT_LOG_LEVEL,
		File:   _DEFAULT_LOG_FILE,
		Stderr: true,
	}
}

func readReplicationConfig(sec *ini.Section, rc *ReplicationConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "local_player_authority" {
			rc.LocalPlayerAuthority = key.MustBool(rc.LocalPlayerAuthority)
		} else if name == "host_client" {
			rc.HostClient = key.MustBool(rc.HostClient)
		} else if name == "tick_interval_ms" {
			rc.TickInterval = time.Millisecond * time.Duration(key.MustInt(int(rc.TickInterval/time.Millisecond)))
		} else if name == "warn_tick_duration_ms" {
			rc.WarnTickDuration = time.Millisecond * time.Duration(key.MustInt(int(rc.WarnTickDuration/time.Millisecond)))
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readHostConfig(sec *ini.Section, hc *HostConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "listen_addr" {
			hc.ListenAddr = key.MustString(hc.ListenAddr)
		} else if name == "ws_path" {
			hc.WSPath = key.MustString(hc.WSPath)
		} else if name == "read_buffer_size" {
			hc.ReadBufferSize = key.MustInt(hc.ReadBufferSize)
		} else if name == "write_buffer_size" {
			hc.WriteBufferSize = key.MustInt(hc.WriteBufferSize)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func readLogConfig(sec *ini.Section, lc *LogConfig) {
	for _, key := range sec.Keys() {
		name := strings.ToLower(key.Name())
		if name == "level" {
			lc.Level = key.MustString(lc.Level)
		} else if name == "file" {
			lc.File = key.MustString(lc.File)
		} else if name == "stderr" {
			lc.Stderr = key.MustBool(lc.Stderr)
		} else {
			gwlog.Panicf("section %s has unknown key: %s", sec.Name(), key.Name())
		}
	}
}

func validateConfig(config *GWReplConfig) {
	if config.Replication.TickInterval <= 0 {
		gwlog.Panicf("replication.tick_interval_ms must be positive, but is %s", config.Replication.TickInterval)
	}
	if config.Host.WSPath == "" || config.Host.WSPath[0] != '/' {
		gwlog.Panicf("host.ws_path must start with /, but is %q", config.Host.WSPath)
	}
}

func checkConfigError(err error, msg string) {
	if err != nil {
		if msg == "" {
			msg = err.Error()
		}
		gwlog.Panicf("read config error: %s", msg)
	}
}
