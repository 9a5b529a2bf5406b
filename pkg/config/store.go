package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultPath 默认配置文件位置
const DefaultPath = "~/.gitlab-deploy/config.yaml"

type Store interface {
	Load() (*Configuration, error)
	Save(cfg *Configuration) error
}

type defaultStore struct {
	Path string
}

func NewDefaultStore(path string) Store {
	if path == "" {
		path = DefaultPath
	}
	return &defaultStore{Path: path}
}

// Load 文件不存在时返回默认配置，文件中未出现的字段保持默认值
func (s *defaultStore) Load() (*Configuration, error) {
	path, err := homedir.Expand(s.Path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (s *defaultStore) Save(cfg *Configuration) error {
	path, err := homedir.Expand(s.Path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
