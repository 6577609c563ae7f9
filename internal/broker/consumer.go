package broker

import (
	"fmt"
	"log/slog"
	"sort"
)

// DefaultDriver is used when ConsumerConfig.Driver is empty.
const DefaultDriver = "kafkago"

// ConsumerFactory builds a Consumer for a driver.
type ConsumerFactory func(cfg Config, ccfg ConsumerConfig, logger *slog.Logger) (Consumer, error)

var drivers = map[string]ConsumerFactory{}

// RegisterDriver is called from each driver's init().
func RegisterDriver(name string, f ConsumerFactory) {
	drivers[name] = f
}

// Drivers lists registered driver names.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewConsumer returns a consumer for ccfg.Driver ("kafkago", "sarama").
func NewConsumer(cfg Config, ccfg ConsumerConfig, logger *slog.Logger) (Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	name := ccfg.Driver
	if name == "" {
		name = DefaultDriver
	}

	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("kafka: unsupported consumer driver %q", name)
	}
	return f(cfg, ccfg, logger.With("component", "consumer", "driver", name))
}
