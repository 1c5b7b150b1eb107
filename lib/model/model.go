package model

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// struct adapted to config file
type Configuration struct {
	Mortar struct {
		Debug       int    `json:"Debug" yaml:"Debug"`
		ListenHost  string `json:"ListenHost" yaml:"ListenHost"`
		ListenPort  int    `json:"ListenPort" yaml:"ListenPort"`
		QueryPort   int    `json:"QueryPort" yaml:"QueryPort"`     // udp query port (0: query disabled)
		ReadTimeout int    `json:"ReadTimeout" yaml:"ReadTimeout"` // seconds a client connection can stay idle
	} `json:"Mortar" yaml:"Mortar"`
	Web struct {
		Host               string `json:"Host" yaml:"Host"`
		Port               int    `json:"Port" yaml:"Port"`
		AggregationURL     string `json:"AggregationURL" yaml:"AggregationURL"`         // empty: served by the local web api
		AggregationTimeout int    `json:"AggregationTimeout" yaml:"AggregationTimeout"` // milliseconds
	} `json:"Web" yaml:"Web"`
	Backend struct {
		Timeout  int `json:"Timeout" yaml:"Timeout"`   // milliseconds for a single status poll
		CacheTTL int `json:"CacheTTL" yaml:"CacheTTL"` // seconds a polled status is considered fresh
	} `json:"Backend" yaml:"Backend"`
	Status struct {
		IconPath string `json:"IconPath" yaml:"IconPath"`
	} `json:"Status" yaml:"Status"`
	ServerList []ServerTarget `json:"ServerList" yaml:"ServerList"`
}

// ServerTarget is a real minecraft server polled for its status
type ServerTarget struct {
	Host    string `json:"Host" yaml:"Host"`
	Port    int    `json:"Port" yaml:"Port"`
	Version string `json:"Version" yaml:"Version"`
}

// Addr returns the target address in host:port format
func (t ServerTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t ServerTarget) String() string {
	return fmt.Sprintf("%s %s", t.Addr(), t.Version)
}

// StatusDocument is the json status shown in the client server list.
// Mod related fields are not interpreted and passed through as they are.
type StatusDocument struct {
	Version            StatusVersion   `json:"version"`
	Players            StatusPlayers   `json:"players"`
	Description        json.RawMessage `json:"description,omitempty"`
	Favicon            string          `json:"favicon,omitempty"`
	EnforcesSecureChat bool            `json:"enforcesSecureChat"`
	PreviewsChat       *bool           `json:"previewsChat,omitempty"`
	ForgeData          json.RawMessage `json:"forgeData,omitempty"`
	ModInfo            json.RawMessage `json:"modinfo,omitempty"`
	ModpackData        json.RawMessage `json:"modpackData,omitempty"`
}

// DescriptionText returns the plain text of the description
// (a string or a chat component, possibly nested in a list)
func (d *StatusDocument) DescriptionText() string {
	var sb strings.Builder
	chatText(d.Description, &sb)
	return sb.String()
}

func chatText(raw json.RawMessage, sb *strings.Builder) {
	if len(raw) == 0 {
		return
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		sb.WriteString(s)
		return
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, c := range list {
			chatText(c, sb)
		}
		return
	}

	var component struct {
		Text  string            `json:"text"`
		Extra []json.RawMessage `json:"extra"`
	}
	if err := json.Unmarshal(raw, &component); err == nil {
		sb.WriteString(component.Text)
		for _, c := range component.Extra {
			chatText(c, sb)
		}
	}
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int32  `json:"protocol"`
}

type StatusPlayers struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []PlayerSample `json:"sample"`
}

type PlayerSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ChatComponent is a minecraft text component
type ChatComponent struct {
	Text       string          `json:"text"`
	Bold       bool            `json:"bold,omitempty"`
	Italic     bool            `json:"italic,omitempty"`
	Underlined bool            `json:"underlined,omitempty"`
	Color      string          `json:"color,omitempty"`
	Extra      []ChatComponent `json:"extra,omitempty"`
}

// Health is the web api health report
type Health struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Memory  struct {
		Rss      string  `json:"rss"`
		Vms      string  `json:"vms"`
		Percent  float64 `json:"percent"`
		SysTotal string  `json:"sysTotal"`
		SysUsed  string  `json:"sysUsed"`
	} `json:"memory"`
	Cpu struct {
		Usage    string `json:"usage"`
		SysUsage string `json:"sysUsage"`
		Cores    int    `json:"cores"`
	} `json:"cpu"`
	Uptime       string `json:"uptime"`
	MortarUptime string `json:"mortarUptime"`
	Connections  Counts `json:"connections"`
}

// Counts are the client connection counters
type Counts struct {
	Active    int `json:"active"`
	Status    int `json:"status"`
	Ping      int `json:"ping"`
	Login     int `json:"login"`
	Rejected  int `json:"rejected"`
	Legacy    int `json:"legacy"`
	Query     int `json:"query"`
	Aggregate int `json:"aggregateErrors"`
}
