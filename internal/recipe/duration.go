package recipe

import "time"

// A [time.Duration] that decodes from Go duration strings such as "30m".
//
// Implements [encoding.TextUnmarshaler], which both the YAML and TOML
// decoders honor.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}
