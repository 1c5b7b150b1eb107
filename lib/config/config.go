package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"mortar/lib/errco"
	"mortar/lib/model"
	"mortar/lib/opsys"
)

var (
	configFileName string = "mortar-config.json" // configFileName is the config file path (.json, .yaml or .yml)

	ConfigDefault *Configuration = &Configuration{} // ConfigDefault contains parameters of config in file
	ConfigRuntime *Configuration = &Configuration{} // ConfigRuntime contains parameters of config in runtime

	configDefaultSave bool = false // if true, the config will be saved after successful loading

	ServerIcon string = defaultServerIcon // ServerIcon contains the favicon data url shown in the composite status
)

const (
	defaultListenHost  = "0.0.0.0"
	defaultListenPort  = 25565
	defaultReadTimeout = 3 // seconds
	defaultWebHost     = "0.0.0.0"
	defaultWebPort     = 25580
	defaultAggrTimeout = 3000 // milliseconds
	defaultPollTimeout = 1000 // milliseconds
	defaultCacheTTL    = 60   // seconds
	defaultDebugLvl    = 1
)

type Configuration struct {
	model.Configuration `yaml:",inline"`
}

// Flags registers on fs the flags that override the runtime config
func Flags(fs *pflag.FlagSet) {
	fs.StringVarP(&configFileName, "config", "c", configFileName, "Specify config file path (.json, .yaml or .yml).")
	fs.IntP("debug", "d", defaultDebugLvl, "Specify debug level.")
	fs.String("host", defaultListenHost, "Specify mortar listen host.")
	fs.IntP("port", "p", defaultListenPort, "Specify mortar listen port.")
	fs.Int("queryport", 0, "Specify mortar udp query port (0 to disable).")
	fs.Int("readtimeout", defaultReadTimeout, "Specify seconds a client connection can stay idle.")
	fs.String("webhost", defaultWebHost, "Specify web api listen host.")
	fs.Int("webport", defaultWebPort, "Specify web api listen port.")
	fs.String("aggregation", "", "Specify aggregation endpoint url (empty to use the local web api).")
	fs.String("icon", "", "Specify server icon png path.")
}

// LoadConfig loads config file into default/runtime config.
// fs carries the flags registered with Flags (nil: no overrides).
// should be the first function to be called by main.
func LoadConfig(fs *pflag.FlagSet) *errco.MrtLog {
	// ---------------- OS support ----------------- //

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "checking OS support...")

	logMrt := opsys.OsSupported()
	if logMrt != nil {
		return logMrt.AddTrace()
	}

	// ---------------- load config ---------------- //

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "loading config...")

	InstanceID = LoadInstanceID()

	// load config default
	logMrt = ConfigDefault.loadDefault()
	if logMrt != nil {
		return logMrt.AddTrace()
	}

	// load config runtime
	logMrt = ConfigRuntime.loadRuntime(ConfigDefault, fs)
	if logMrt != nil {
		return logMrt.AddTrace()
	}

	// ---------------- save config ---------------- //

	if configDefaultSave {
		logMrt := ConfigDefault.Save()
		if logMrt != nil {
			// config in memory is valid: keep running
			logMrt.Log(true)
		}

		// reset config default save flag
		configDefaultSave = false
	}

	return nil
}

// Save saves config to the config file (format chosen by file extension)
func (c *Configuration) Save() *errco.MrtLog {
	configData, err := encode(configFileName, c)
	if err != nil {
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CONFIG_SAVE, "could not marshal config: %s", err.Error())
	}

	err = os.WriteFile(configFileName, configData, 0644)
	if err != nil {
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_CONFIG_SAVE, "could not write to config file: %s", err.Error())
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "saved default config to config file")

	return nil
}

// loadDefault loads config file to config variable.
// If the config file does not exist, it is generated from defaults.
func (c *Configuration) loadDefault() *errco.MrtLog {
	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "reading config file: \"%s\"", configFileName)

	configData, err := os.ReadFile(configFileName)
	switch {
	case errors.Is(err, os.ErrNotExist):
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_CONFIG_LOAD, "config file %s does not exist, generating default config", configFileName)
		c.Mortar.Debug = defaultDebugLvl
		configDefaultSave = true
	case err != nil:
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_LOAD, err.Error())
	default:
		err = decode(configFileName, configData, c)
		if err != nil {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_LOAD, err.Error())
		}
	}

	// ------------------- setup ------------------- //

	if c.setDefaults() {
		configDefaultSave = true
	}

	return nil
}

// loadRuntime initializes runtime config to default config.
// Then applies the flags set by the user and does the runtime config setup
func (c *Configuration) loadRuntime(confdef *Configuration, fs *pflag.FlagSet) *errco.MrtLog {
	// initialize config to base
	*c = *confdef
	c.ServerList = append([]model.ServerTarget{}, confdef.ServerList...)

	// apply flags
	if fs != nil {
		c.applyFlags(fs)
	}

	// after config variables are set, set debug level
	errco.NewLogln(errco.TYPE_INF, errco.LVL_0, errco.ERROR_NIL, "setting log level to: %d", c.Mortar.Debug)
	errco.DebugLvl = errco.LogLvl(c.Mortar.Debug)

	// ---------------- setup check ---------------- //

	logMrt := c.Validate()
	if logMrt != nil {
		return logMrt.AddTrace()
	}

	if len(c.ServerList) == 0 {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "server list is empty: the composite status will have no players")
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "mortar status responder setup: %s:%d (query port %d)", c.Mortar.ListenHost, c.Mortar.ListenPort, c.Mortar.QueryPort)
	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "mortar web api setup: %s:%d (%d backends)", c.Web.Host, c.Web.Port, len(c.ServerList))

	// ---------------- setup load ----------------- //

	// load server icon
	var logIcon *errco.MrtLog
	ServerIcon, logIcon = loadIcon(c.Status.IconPath)
	if logIcon != nil {
		// log and continue (default icon is loaded by default)
		logIcon.Log(true)
	}

	return nil
}

// applyFlags overrides the config with the flags explicitly set in fs
func (c *Configuration) applyFlags(fs *pflag.FlagSet) {
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			if v, err := fs.GetInt(name); err == nil {
				*dst = v
			}
		}
	}
	setString := func(name string, dst *string) {
		if fs.Changed(name) {
			if v, err := fs.GetString(name); err == nil {
				*dst = v
			}
		}
	}

	setInt("debug", &c.Mortar.Debug)
	setString("host", &c.Mortar.ListenHost)
	setInt("port", &c.Mortar.ListenPort)
	setInt("queryport", &c.Mortar.QueryPort)
	setInt("readtimeout", &c.Mortar.ReadTimeout)
	setString("webhost", &c.Web.Host)
	setInt("webport", &c.Web.Port)
	setString("aggregation", &c.Web.AggregationURL)
	setString("icon", &c.Status.IconPath)
}

// setDefaults fills the zero values of c with defaults.
// Returns true if c was modified.
func (c *Configuration) setDefaults() bool {
	modified := false

	defInt := func(dst *int, def int) {
		if *dst == 0 {
			*dst = def
			modified = true
		}
	}
	defString := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
			modified = true
		}
	}

	defString(&c.Mortar.ListenHost, defaultListenHost)
	defInt(&c.Mortar.ListenPort, defaultListenPort)
	defInt(&c.Mortar.ReadTimeout, defaultReadTimeout)
	defString(&c.Web.Host, defaultWebHost)
	defInt(&c.Web.Port, defaultWebPort)
	defInt(&c.Web.AggregationTimeout, defaultAggrTimeout)
	defInt(&c.Backend.Timeout, defaultPollTimeout)
	defInt(&c.Backend.CacheTTL, defaultCacheTTL)

	for i := range c.ServerList {
		defString(&c.ServerList[i].Version, "1.16.5")
	}

	return modified
}

// Validate checks that config values can be used
func (c *Configuration) Validate() *errco.MrtLog {
	validPort := func(p int) bool { return p >= 1 && p <= 65535 }

	switch {
	case c.Mortar.ListenHost == "":
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Mortar.ListenHost is empty")
	case !validPort(c.Mortar.ListenPort):
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Mortar.ListenPort is not valid: %d", c.Mortar.ListenPort)
	case c.Mortar.QueryPort != 0 && !validPort(c.Mortar.QueryPort):
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Mortar.QueryPort is not valid: %d", c.Mortar.QueryPort)
	case c.Mortar.ReadTimeout < 0:
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Mortar.ReadTimeout is negative: %d", c.Mortar.ReadTimeout)
	case c.Web.Host == "":
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Web.Host is empty")
	case !validPort(c.Web.Port):
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Web.Port is not valid: %d", c.Web.Port)
	case c.Web.Port == c.Mortar.ListenPort:
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Web.Port and Mortar.ListenPort appear to be the same, please change one of them")
	case c.Web.AggregationURL != "" && !strings.HasPrefix(c.Web.AggregationURL, "http://") && !strings.HasPrefix(c.Web.AggregationURL, "https://"):
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "Web.AggregationURL is not an http url: %s", c.Web.AggregationURL)
	case c.Backend.Timeout < 0 || c.Backend.CacheTTL < 0 || c.Web.AggregationTimeout < 0:
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "timeouts can't be negative")
	}

	for _, t := range c.ServerList {
		if t.Host == "" || !validPort(t.Port) {
			return errco.NewLog(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CONFIG_CHECK, "server list entry is not valid: %s", t.String())
		}
	}

	return nil
}

// AggregationURL returns the url of the aggregation endpoint
// (the local web api if not specified)
func (c *Configuration) AggregationURL() string {
	if c.Web.AggregationURL != "" {
		return c.Web.AggregationURL
	}

	host := c.Web.Host
	if host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Web.Port)) + "/serverlist"
}

// decode decodes config data by file extension
func decode(path string, data []byte, c *Configuration) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, c)
	default:
		return json.Unmarshal(data, c)
	}
}

// encode encodes config data by file extension
func encode(path string, c *Configuration) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Marshal(c)
	default:
		// keep "<" and ">" readable
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(c); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
