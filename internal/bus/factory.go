package bus

import (
	"fmt"
	"strings"

	"github.com/radicugloss/radicugloss/internal/config"
	"github.com/radicugloss/radicugloss/internal/pkg/errors"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
)

// NewBus creates a Bus from configuration. A configured journal path wraps
// the result in a JournaledBus.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	var (
		b   Bus
		err error
	)

	switch strings.ToLower(cfg.Type) {
	case "memory", "":
		b = NewMemoryBus(log)

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka brokers not configured")
		}

		group := cfg.KafkaGroup
		if group == "" {
			group = "radicugloss"
		}

		b, err = NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
			ClientID:      cfg.ClientID,
		}, log)
		if err != nil {
			return nil, err
		}

	default:
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("unknown bus type: %s", cfg.Type))
	}

	if cfg.JournalPath == "" {
		return b, nil
	}

	journal, err := OpenJournal(cfg.JournalPath)
	if err != nil {
		b.Close()
		return nil, err
	}
	return NewJournaledBus(b, journal, log), nil
}
