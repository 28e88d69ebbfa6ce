package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/valter-silva-au/agentjobs/pkg/models"
	"gopkg.in/yaml.v3"
)

// SubscriptionFile represents the top-level structure of webhooks.yaml.
type SubscriptionFile struct {
	Version       string                         `yaml:"version"`
	Subscriptions map[string]models.Subscription `yaml:"subscriptions"`
}

// SubscriptionStore persists webhook subscriptions in a single YAML file.
type SubscriptionStore interface {
	Add(sub models.Subscription) error
	Get(id string) (*models.Subscription, error)
	List() ([]models.Subscription, error)
	Remove(id string) error
	MarkTriggered(id string, at time.Time) error
}

type fileSubscriptionStore struct {
	path string
	mu   sync.Mutex
}

// NewSubscriptionStore creates a SubscriptionStore backed by the YAML file at path.
func NewSubscriptionStore(path string) SubscriptionStore {
	return &fileSubscriptionStore{path: path}
}

func (s *fileSubscriptionStore) Add(sub models.Subscription) error {
	if sub.ID == "" {
		return models.NewValidationError("subscription id must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := data.Subscriptions[sub.ID]; exists {
		return models.NewValidationError("subscription %s already exists", sub.ID)
	}
	data.Subscriptions[sub.ID] = sub
	return s.save(data)
}

func (s *fileSubscriptionStore) Get(id string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	sub, ok := data.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	return &sub, nil
}

// List returns all subscriptions ordered by creation time, then id.
func (s *fileSubscriptionStore) List() ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}
	subs := make([]models.Subscription, 0, len(data.Subscriptions))
	for _, sub := range data.Subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].Created.Equal(subs[j].Created) {
			return subs[i].Created.Before(subs[j].Created)
		}
		return subs[i].ID < subs[j].ID
	})
	return subs, nil
}

func (s *fileSubscriptionStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data.Subscriptions[id]; !ok {
		return fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	delete(data.Subscriptions, id)
	return s.save(data)
}

// MarkTriggered records the time of the latest successful delivery attempt.
func (s *fileSubscriptionStore) MarkTriggered(id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	sub, ok := data.Subscriptions[id]
	if !ok {
		// Deleted while a delivery was in flight.
		return fmt.Errorf("subscription %s: %w", id, models.ErrNotFound)
	}
	ts := at
	sub.LastTriggered = &ts
	data.Subscriptions[id] = sub
	return s.save(data)
}

func (s *fileSubscriptionStore) load() (*SubscriptionFile, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &SubscriptionFile{Version: "1.0", Subscriptions: make(map[string]models.Subscription)}, nil
		}
		return nil, fmt.Errorf("%w: loading subscriptions: %w", models.ErrStoreFailure, err)
	}

	var sf SubscriptionFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("%w: loading subscriptions: parsing YAML: %w", models.ErrCorrupt, err)
	}
	if sf.Subscriptions == nil {
		sf.Subscriptions = make(map[string]models.Subscription)
	}
	if sf.Version == "" {
		sf.Version = "1.0"
	}
	return &sf, nil
}

func (s *fileSubscriptionStore) save(sf *SubscriptionFile) error {
	raw, err := marshalDocument(sf)
	if err != nil {
		return fmt.Errorf("%w: saving subscriptions: marshaling YAML: %w", models.ErrStoreFailure, err)
	}
	if err := writeFileAtomic(s.path, raw, 0o600); err != nil {
		return fmt.Errorf("%w: saving subscriptions: %w", models.ErrStoreFailure, err)
	}
	return nil
}
