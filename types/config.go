package types

import "time"

// Configuration holds the process configuration
type Configuration struct {
	Listen          string          `yaml:"listen" json:"listen"`
	TypeID          int32           `yaml:"typeId" json:"typeId"`
	DataDir         string          `yaml:"dataDir" json:"dataDir"`
	LogLevel        string          `yaml:"logLevel" json:"logLevel"`
	MetricsInterval time.Duration   `yaml:"metricsInterval" json:"metricsInterval"`
	Bindings        []BindingConfig `yaml:"bindings" json:"bindings"`
}

// BindingConfig describes a binding: which topics it serves and through which routes.
type BindingConfig struct {
	ID        int64         `yaml:"id" json:"id"`
	Namespace string        `yaml:"namespace" json:"namespace"`
	Name      string        `yaml:"name" json:"name"`
	Routes    []RouteConfig `yaml:"routes" json:"routes"`
	Topics    []TopicConfig `yaml:"topics" json:"topics"`
}

// RouteConfig sends topics matching any of the glob patterns to route ID.
type RouteConfig struct {
	ID     int64    `yaml:"id" json:"id"`
	Topics []string `yaml:"topics" json:"topics"`
}

// TopicConfig holds per-topic options.
type TopicConfig struct {
	Name          string `yaml:"name" json:"name"`
	DefaultOffset string `yaml:"defaultOffset" json:"defaultOffset"`
	Compression   string `yaml:"compression" json:"compression"`
}
