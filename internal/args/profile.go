package args

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Profile is an optional defaults file for the flag surface. Values
// only apply where the corresponding flag was not given, so the
// command line always wins.
type Profile struct {
	Jobs    string `yaml:"jobs,omitempty"`
	MemFree string `yaml:"memfree,omitempty"`
	Timeout string `yaml:"timeout,omitempty"`
	Delay   string `yaml:"delay,omitempty"`
	Grace   string `yaml:"grace,omitempty"`
	MaxArgs string `yaml:"max_args,omitempty"`
	Ordered *bool  `yaml:"keep_order,omitempty"`
	JobLog  string `yaml:"joblog,omitempty"`
	WorkDir string `yaml:"workdir,omitempty"`
	LogFile string `yaml:"log_file,omitempty"`
	Verbose *bool  `yaml:"verbose,omitempty"`
	ETA     *bool  `yaml:"eta,omitempty"`
}

// LoadProfile decodes a profile. Unknown keys are rejected so a typo in
// the file does not silently fall back to defaults.
func LoadProfile(r io.Reader) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		if err == io.EOF {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return p, nil
}

// Apply fills unset fields of raw from the profile.
func (p Profile) Apply(raw *Raw) {
	setString(&raw.Jobs, p.Jobs)
	setString(&raw.MemFree, p.MemFree)
	setString(&raw.Timeout, p.Timeout)
	setString(&raw.Delay, p.Delay)
	setString(&raw.Grace, p.Grace)
	setString(&raw.MaxArgs, p.MaxArgs)
	setString(&raw.JobLog, p.JobLog)
	setString(&raw.WorkDir, p.WorkDir)
	setString(&raw.LogFile, p.LogFile)
	setBool(&raw.Ordered, p.Ordered)
	setBool(&raw.Verbose, p.Verbose)
	setBool(&raw.ETA, p.ETA)
}

func setString(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if !*dst && v != nil {
		*dst = *v
	}
}
