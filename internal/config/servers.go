package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Server is one peer entry in servers.toml.
type Server struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
}

// Servers is the peer registry keyed by server name.
type Servers map[string]Server

// LoadServers reads the peer registry. A missing file is an empty registry.
func LoadServers(path string) (Servers, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Servers{}, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var doc struct {
		Servers Servers `mapstructure:"servers"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, err
	}
	if doc.Servers == nil {
		doc.Servers = Servers{}
	}
	return doc.Servers, nil
}

// SaveServers writes the registry back as TOML, one [servers.<name>] block
// per peer, in stable order.
func SaveServers(path string, s Servers) error {
	var b strings.Builder
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&b, "[servers.%s]\n", n)
		fmt.Fprintf(&b, "address = %q\n", s[n].Address)
		if s[n].Token != "" {
			fmt.Fprintf(&b, "token = %q\n", s[n].Token)
		}
		b.WriteString("\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// Agent is the agent.toml contents for a daemon enrolled with a server.
type Agent struct {
	ServerURL string `mapstructure:"server_url"`
	ID        string `mapstructure:"id"`
	Name      string `mapstructure:"name"`
}

// LoadAgent reads the agent enrolment; ok is false when none exists.
func LoadAgent(path string) (Agent, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Agent{}, false, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return Agent{}, false, err
	}
	var a Agent
	if err := v.Unmarshal(&a); err != nil {
		return Agent{}, false, err
	}
	return a, true, nil
}

// SaveAgent persists the enrolment.
func SaveAgent(path string, a Agent) error {
	content := fmt.Sprintf("server_url = %q\nid = %q\nname = %q\n", a.ServerURL, a.ID, a.Name)
	return os.WriteFile(path, []byte(content), 0o600)
}

// RemoveAgent deletes the enrolment file.
func RemoveAgent(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
