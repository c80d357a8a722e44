package config

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MarshalJSON encodes a bare-name Action as a string and a parameterized one
// as a [name, args...] array.
func (a Action) MarshalJSON() ([]byte, error) {
	if len(a.Args) == 0 {
		return json.Marshal(a.Name)
	}
	arr := make([]any, 0, len(a.Args)+1)
	arr = append(arr, a.Name)
	arr = append(arr, a.Args...)
	return json.Marshal(arr)
}

// UnmarshalJSON accepts a string, a [name, args...] array, or null.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		a.Name = s
		a.Args = nil
		return nil
	}

	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) == 0 {
			a.Name = ""
			a.Args = nil
			return nil
		}
		name, _ := arr[0].(string)
		a.Name = name
		a.Args = arr[1:]
		return nil
	}

	// null or unrecognized shape: no-op action.
	a.Name = ""
	a.Args = nil
	return nil
}

// IsNoop reports whether the action is null/"none"/"".
func (a Action) IsNoop() bool {
	return a.Name == "" || a.Name == "none"
}
