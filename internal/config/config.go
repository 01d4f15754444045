package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the WeCom credentials read from the openclaw config file.
// It is loaded once per invocation and never written back.
type Config struct {
	CorpID     string
	CorpSecret string
	AgentID    int
	ProxyURL   string // optional; empty means a direct connection
}

var (
	// ErrMissing is returned when the config file does not exist.
	ErrMissing = errors.New("config file not found")
	// ErrIncomplete is returned when a required credential is absent.
	ErrIncomplete = errors.New("missing WECOM_CORP_ID/WECOM_CORP_SECRET/WECOM_AGENT_ID in config")
)

// Config file keys under env.vars.
const (
	keyCorpID     = "WECOM_CORP_ID"
	keyCorpSecret = "WECOM_CORP_SECRET"
	keyAgentID    = "WECOM_AGENT_ID"
	keyProxy      = "WECOM_PROXY"
)

// file mirrors the subset of openclaw.json this tool reads. The file is
// owned by the openclaw runtime; everything else in it is ignored.
type file struct {
	Env struct {
		Vars map[string]FlexString `json:"vars"`
	} `json:"env"`
}

// FlexString is a string that can unmarshal from a JSON string or number
// (an agent id of 1000002 and "1000002" both become "1000002").
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(strconv.FormatInt(int64(n), 10))
	return nil
}

// DefaultDir returns the openclaw config directory (~/.openclaw).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openclaw"
	}
	return filepath.Join(home, ".openclaw")
}

// DefaultPath returns the default config file path (~/.openclaw/openclaw.json).
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "openclaw.json")
}

// Load reads the config file and extracts the WeCom credentials.
// A missing file yields ErrMissing; a file without complete credentials
// yields ErrIncomplete.
func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	vars := f.Env.Vars
	cfg := &Config{
		CorpID:     string(vars[keyCorpID]),
		CorpSecret: string(vars[keyCorpSecret]),
		ProxyURL:   string(vars[keyProxy]),
	}
	agentID := string(vars[keyAgentID])
	if cfg.CorpID == "" || cfg.CorpSecret == "" || agentID == "" {
		return nil, fmt.Errorf("%w (%s)", ErrIncomplete, path)
	}
	cfg.AgentID, err = strconv.Atoi(agentID)
	if err != nil {
		return nil, fmt.Errorf("%s must be numeric, got %q", keyAgentID, agentID)
	}

	return cfg, nil
}
