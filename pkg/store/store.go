// Package store provides the namespaced key/value storage that survives
// power cycles. Every stateful component of the device (calibration, alert
// counters, channel settings, Wi-Fi credentials) keeps its values here.
package store

import (
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"
)

// Namespaces used by the device.
const (
	NamespaceCalibration = "calibration"
	NamespaceAlert       = "alert"
	NamespaceWifi        = "wifi"
	NamespaceChannels    = "channels"
	NamespaceUI          = "ui"
)

// ErrNotFound is returned by Get when the namespace or key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a namespaced key/value store. Writes to different keys are
// independent; there are no cross-key transactions.
type Store interface {
	// Get returns the raw value, or ErrNotFound.
	Get(namespace, key string) ([]byte, error)
	// Put writes a value, creating the namespace if needed.
	Put(namespace, key string, value []byte) error
	// Clear removes a namespace and all of its keys. Clearing a missing
	// namespace is not an error.
	Clear(namespace string) error
	Close() error
}

// Load decodes the value stored under namespace/key into a T. A missing key
// yields def. A value that cannot be read or decoded is treated as missing:
// it is logged and def is returned.
func Load[T any](s Store, namespace, key string, def T) T {
	b, err := s.Get(namespace, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logrus.WithFields(logrus.Fields{
				"namespace": namespace,
				"key":       key,
			}).WithError(err).Warn("failed to read value from store, using default")
		}
		return def
	}

	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		logrus.WithFields(logrus.Fields{
			"namespace": namespace,
			"key":       key,
		}).WithError(err).Warn("corrupt value in store, using default")
		return def
	}

	return v
}

// Save encodes v and writes it under namespace/key.
func Save[T any](s Store, namespace, key string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(namespace, key, b)
}
