package config

// Parse decodes a Config from either the nested shape
// ({strummer, midi, server}) or the flat shape (strummer fields at the top
// level alongside midi/server). Top-level and nested keys
// tolerate snake_case alongside camelCase. Output is always canonical
// nested camelCase via Serialize (the default struct encoding).
func Parse(data []byte) (Config, error) {
	cfg := Default()

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Config{}, err
	}
	normalized, _ := normalizeKeysDeep(raw).(map[string]any)

	if strummerRaw, nested := normalized["strummer"]; nested {
		encoded, err := json.Marshal(strummerRaw)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(encoded, &cfg.Strummer); err != nil {
			return Config{}, err
		}
	} else {
		bucket := map[string]any{}
		for k, v := range normalized {
			if k != "midi" && k != "server" {
				bucket[k] = v
			}
		}
		if len(bucket) > 0 {
			encoded, err := json.Marshal(bucket)
			if err != nil {
				return Config{}, err
			}
			if err := json.Unmarshal(encoded, &cfg.Strummer); err != nil {
				return Config{}, err
			}
		}
	}

	if midiRaw, ok := normalized["midi"]; ok {
		encoded, err := json.Marshal(midiRaw)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(encoded, &cfg.Midi); err != nil {
			return Config{}, err
		}
	}

	if serverRaw, ok := normalized["server"]; ok {
		encoded, err := json.Marshal(serverRaw)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(encoded, &cfg.Server); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Serialize returns the canonical nested camelCase JSON encoding.
func Serialize(cfg Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}
