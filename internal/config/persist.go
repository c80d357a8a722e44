package config

import (
	"log"
	"os"
)

// Load reads and parses a config file, falling back to defaults if it
// doesn't exist yet.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[CONFIG] %s not found, using defaults", path)
			return Default(), nil
		}
		return Config{}, err
	}
	return Parse(data)
}

// Save persists cfg to path in canonical nested camelCase, atomically via a
// temp-file-then-rename, a standard write-then-move pattern for avoiding torn writes.
func Save(cfg Config, path string) error {
	data, err := Serialize(cfg)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	log.Printf("[CONFIG] saved to %s", path)
	return nil
}
