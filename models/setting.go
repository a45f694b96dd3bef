package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Setting value types.
const (
	SettingString         = "string"
	SettingInteger        = "integer"
	SettingFloat          = "float"
	SettingBoolean        = "boolean"
	SettingSelect         = "select"
	SettingSelectMultiple = "selectmultiple"
)

// SettingsGroup labels a set of related settings for the admin surface.
type SettingsGroup struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Key         string `gorm:"size:64;uniqueIndex;not null" json:"key"`
	Name        string `gorm:"size:255" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	Settings []Setting `gorm:"foreignKey:GroupKey;references:Key;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting is one typed key/value row. Value is stored JSON-encoded so every
// value type round-trips through a single column; Extra carries per-type
// constraints (min/max, choices) consumed by the admin form layer.
type Setting struct {
	Key         string `gorm:"primaryKey;size:64" json:"key"`
	Value       string `gorm:"type:text" json:"value"`
	ValueType   string `gorm:"size:16;not null" json:"value_type"`
	GroupKey    string `gorm:"size:64;index;not null" json:"group_key"`
	Name        string `gorm:"size:255" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Extra       string `gorm:"type:text" json:"extra,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodedValue converts the stored JSON string into the Go value matching
// ValueType.
func (s *Setting) DecodedValue() (interface{}, error) {
	switch s.ValueType {
	case SettingString, SettingSelect:
		return s.Value, nil
	case SettingInteger:
		v, err := strconv.Atoi(s.Value)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	case SettingFloat:
		v, err := strconv.ParseFloat(s.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	case SettingBoolean:
		v, err := strconv.ParseBool(s.Value)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	case SettingSelectMultiple:
		var v []string
		if err := json.Unmarshal([]byte(s.Value), &v); err != nil {
			return nil, fmt.Errorf("setting %s: %w", s.Key, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("setting %s: unknown value type %q", s.Key, s.ValueType)
	}
}

// EncodeSettingValue renders a Go value into the stored representation for the
// given value type.
func EncodeSettingValue(valueType string, v interface{}) (string, error) {
	switch valueType {
	case SettingString, SettingSelect:
		return fmt.Sprintf("%v", v), nil
	case SettingInteger:
		switch t := v.(type) {
		case int:
			return strconv.Itoa(t), nil
		case int64:
			return strconv.FormatInt(t, 10), nil
		case float64:
			return strconv.Itoa(int(t)), nil
		default:
			return "", fmt.Errorf("cannot encode %T as integer", v)
		}
	case SettingFloat:
		switch t := v.(type) {
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(t), nil
		default:
			return "", fmt.Errorf("cannot encode %T as float", v)
		}
	case SettingBoolean:
		b, ok := v.(bool)
		if !ok {
			return "", fmt.Errorf("cannot encode %T as boolean", v)
		}
		return strconv.FormatBool(b), nil
	case SettingSelectMultiple:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unknown value type %q", valueType)
	}
}
