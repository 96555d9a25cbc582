package domain

import "strconv"

// Hard-coded configuration defaults.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.0
	DefaultPrompt      = "You are a friendly and funny version of Frida Kahlo (the Mexican painter). " +
		"You provide short but funny answers. You are interested in knowing more about the person you're talking to."
)

// UserConfig is the effective per-user configuration after merging stored
// overrides with the defaults.
type UserConfig struct {
	UserID      string
	Token       string
	Model       string
	Temperature float64
	Prompt      string
}

// ConfigOverrides holds the per-user overrides kept in the store. Zero-valued
// fields mean "no override"; Temperature is a pointer so an explicit 0 can be
// told apart from "not set".
type ConfigOverrides struct {
	Token       string
	Model       string
	Temperature *float64
	Prompt      string
}

// ApplyOverride sets a single named override from its textual form. Unknown
// fields and out-of-range values are dropped and false is returned; the rest
// of a batched update still applies.
func (o *ConfigOverrides) ApplyOverride(field, value string) bool {
	switch field {
	case "token":
		o.Token = value
	case "model":
		o.Model = value
	case "prompt":
		o.Prompt = value
	case "temperature":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || v < 0 || v > 2 {
			return false
		}
		o.Temperature = &v
	default:
		return false
	}
	return true
}

// ResolveUserConfig merges stored overrides over the hard-coded defaults.
// A nil overrides record yields the pure defaults.
func ResolveUserConfig(userID string, o *ConfigOverrides) UserConfig {
	cfg := UserConfig{
		UserID:      userID,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Prompt:      DefaultPrompt,
	}
	if o == nil {
		return cfg
	}
	cfg.Token = o.Token
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.Temperature != nil {
		cfg.Temperature = *o.Temperature
	}
	if o.Prompt != "" {
		cfg.Prompt = o.Prompt
	}
	return cfg
}
