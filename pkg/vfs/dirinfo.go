package vfs

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

// DirInfoFile is the per-directory configuration file name.
const DirInfoFile = "dirinfo.json"

// DefaultIndexFile is served when a directory is requested.
const DefaultIndexFile = "index.html"

// DirInfo is the optional configuration of a directory.
type DirInfo struct {
	// DefaultFile is the child served when the directory itself is requested.
	DefaultFile string `json:"default_file"`
}

func defaultDirInfo() *DirInfo {
	return &DirInfo{DefaultFile: DefaultIndexFile}
}

// ParseDirInfo parses a dirinfo.json payload. Comments and trailing commas
// are tolerated. Missing fields keep their defaults.
func ParseDirInfo(data []byte) (*DirInfo, error) {
	info := defaultDirInfo()
	if err := json.Unmarshal(jsonc.ToJSON(data), info); err != nil {
		return nil, fmt.Errorf("parse %s: %w", DirInfoFile, err)
	}
	if info.DefaultFile == "" {
		info.DefaultFile = DefaultIndexFile
	}
	return info, nil
}
