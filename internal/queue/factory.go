package queue

import (
	"fmt"
	"strings"

	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
)

// NewQueue creates a new Queue instance based on configuration.
// Default is NATS if type is not specified.
func NewQueue(cfg config.QueueConfig, logger *logging.Logger) (Queue, error) {
	if logger == nil {
		logger = logging.Global()
	}
	queueType := Type(strings.ToLower(cfg.Type))

	if queueType == "" {
		queueType = TypeNATS
	}

	switch queueType {
	case TypeNATS:
		return newNATSQueue(NATSConfig{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
		}, logger)

	case TypeRedis:
		return newRedisQueue(RedisConfig{
			URL:       cfg.URL,
			Password:  cfg.Password,
			DB:        cfg.RedisDB,
			Stream:    cfg.RedisStream,
			Group:     cfg.RedisGroup,
			Consumer:  cfg.RedisConsumer,
			ClaimIdle: cfg.RedisClaimIdle,
		}, logger)

	case TypeKafka:
		return newKafkaQueue(KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
		}, logger)

	case TypeMemory:
		return newMemoryQueue(logger), nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s (supported: nats, redis, kafka, memory)", queueType)
	}
}
