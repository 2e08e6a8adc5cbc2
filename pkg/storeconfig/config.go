// Package storeconfig loads the on-disk configuration for a Store using
// spf13/viper, picking up the ARROWMMAP_ environment prefix for overrides.
// The teacher's pkg/config used a hand-rolled ${VAR} substitution loader
// over gopkg.in/yaml.v3 and declared spf13/viper in go.mod without ever
// importing it; this package is where that dependency finally gets wired.
package storeconfig

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/arrowmmap/pkg/mmap"
	"github.com/ajitpratap0/arrowmmap/pkg/storeerrors"
)

// MappingOptions mirrors mmap.Options in a config-file-friendly shape.
type MappingOptions struct {
	ReaderFlags int `mapstructure:"reader_flags"`
	WriterFlags int `mapstructure:"writer_flags"`
	Madvise     int `mapstructure:"madvise"`
	FillWith    int `mapstructure:"fill_with"`
}

// ToMmapCreateOptions converts MappingOptions into the mmap package's
// create-time options, truncating FillWith to a single byte.
func (m MappingOptions) ToMmapCreateOptions() mmap.CreateOptions {
	return mmap.CreateOptions{
		Options:  mmap.Options{ReaderFlags: m.ReaderFlags, WriterFlags: m.WriterFlags, Madvise: m.Madvise},
		FillWith: byte(m.FillWith),
	}
}

// ToMmapOptions converts MappingOptions into the mmap package's open-time
// options.
func (m MappingOptions) ToMmapOptions() mmap.Options {
	return mmap.Options{ReaderFlags: m.ReaderFlags, WriterFlags: m.WriterFlags, Madvise: m.Madvise}
}

// Spec is the declarative configuration for a Store: where it lives on
// disk, how many producer stripes it reserves, and its fixed capacity.
type Spec struct {
	Location    string         `mapstructure:"location"`
	WriterCount int            `mapstructure:"writer_count"`
	ArrayLength int            `mapstructure:"array_length"`
	Capacity    int            `mapstructure:"capacity"`
	Mapping     MappingOptions `mapstructure:"mapping"`
}

// Load reads a Spec from path using viper, overlaying any environment
// variables prefixed ARROWMMAP_ (e.g. ARROWMMAP_WRITER_COUNT=4).
func Load(path string) (*Spec, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ARROWMMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, storeerrors.Wrap(storeerrors.IO, "read config "+path, err)
	}

	var spec Spec
	if err := v.Unmarshal(&spec); err != nil {
		return nil, storeerrors.Wrap(storeerrors.InvalidArgument, "decode config "+path, err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate checks the same preconditions store.Create enforces, so
// misconfiguration is caught before any file is touched.
func (s *Spec) Validate() error {
	if s.Location == "" {
		return storeerrors.New(storeerrors.InvalidArgument, "location must not be empty")
	}
	if s.WriterCount <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "writer_count must be positive").
			WithDetail("writer_count", s.WriterCount)
	}
	if s.ArrayLength <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "array_length must be positive").
			WithDetail("array_length", s.ArrayLength)
	}
	if s.Capacity <= 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "capacity must be positive").
			WithDetail("capacity", s.Capacity)
	}
	if s.ArrayLength%s.WriterCount != 0 {
		return storeerrors.New(storeerrors.InvalidArgument, "array_length must be a multiple of writer_count").
			WithDetail("array_length", s.ArrayLength).WithDetail("writer_count", s.WriterCount)
	}
	return nil
}
