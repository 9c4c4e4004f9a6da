//go:build enterprise
// +build enterprise

package orchestrator

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// CheckBrokers attempts to dial the provided brokers to verify reachability.
func CheckBrokers(ctx context.Context, brokers []string, timeout time.Duration) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		for _, b := range brokers {
			conn, err := kafka.DialContext(ctx, "tcp", b)
			if err == nil {
				_ = conn.Close()
				return nil
			}
			lastErr = err
		}
		// small backoff
		select {
		case <-time.After(200 * time.Millisecond):
			// retry
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to reach any broker within %s: last error: %v", timeout, lastErr)
}

// EnsureTopics ensures that each topic exists; if missing it will create it using the cluster controller.
func EnsureTopics(ctx context.Context, brokers []string, configs []kafka.TopicConfig) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no brokers provided")
	}

	// Dial any broker to locate the controller
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial broker %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}
	controllerAddr := net.JoinHostPort(controller.Host, fmt.Sprint(controller.Port))

	ctrlConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return fmt.Errorf("failed to dial controller %s: %w", controllerAddr, err)
	}
	defer ctrlConn.Close()

	for _, cfg := range configs {
		topic := cfg.Topic
		// Check if the topic already has partitions
		parts, err := ctrlConn.ReadPartitions(topic)
		if err != nil {
			// log and continue to attempt create
			log.Warn().Err(err).Str("topic", topic).Msg("read partitions failed")
		}
		if len(parts) > 0 {
			log.Info().Str("topic", topic).Msg("topic exists")
			continue
		}

		// Create topic
		if err := ctrlConn.CreateTopics(cfg); err != nil {
			// If error indicates topic exists, ignore; otherwise return
			log.Error().Err(err).Str("topic", topic).Msg("create topic failed")
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
		log.Info().Str("topic", topic).Msg("created topic")
	}
	return nil
}
