package config

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Holder хранит текущий снимок конфигурации и позволяет перечитывать его без перезапуска.
// Читатели получают неизменяемый снимок; изменения публикуются атомарно.
type Holder struct {
	current atomic.Pointer[Config]
	path    string
	mu      sync.Mutex
}

// NewHolder создает Holder с начальной конфигурацией
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.current.Store(cfg)
	return h
}

// Current возвращает текущий снимок конфигурации. Снимок нельзя изменять.
func (h *Holder) Current() *Config {
	return h.current.Load()
}

// Reload перечитывает конфигурацию из файла и окружения.
// При ошибке остается прежний снимок.
func (h *Holder) Reload() (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cfg, err := LoadConfig(h.path)
	if err != nil {
		return nil, fmt.Errorf("reload config: %w", err)
	}
	h.current.Store(cfg)
	return cfg, nil
}

// Update применяет изменение к копии текущего снимка, валидирует и публикует ее
func (h *Holder) Update(mutate func(cfg *Config)) (*Config, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.current.Load().Clone()
	mutate(next)
	if err := validateConfig(next); err != nil {
		return nil, fmt.Errorf("update config: %w", err)
	}
	h.current.Store(next)
	return next, nil
}
