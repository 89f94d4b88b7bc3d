package client

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultDisplayName is used when an account has no saved display name.
const DefaultDisplayName = "Host"

// Prefs persists the per-device state the browser build keeps in
// localStorage: a stable device identifier and per-username display
// names. The file is plain JSON, created on first write.
type Prefs struct {
	path string

	mu   sync.Mutex
	data prefsData
}

type prefsData struct {
	DeviceID     string            `json:"deviceId,omitempty"`
	DisplayNames map[string]string `json:"displayNames,omitempty"`
}

// NewPrefs loads preferences from path. A missing file is not an
// error; it means first run.
func NewPrefs(path string) (*Prefs, error) {
	p := &Prefs{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return nil, fmt.Errorf("reading prefs file: %w", err)
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("parsing prefs file: %w", err)
	}
	return p, nil
}

// DeviceID returns the stable device identifier, generating and
// persisting one if absent.
func (p *Prefs) DeviceID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.DeviceID != "" {
		return p.data.DeviceID, nil
	}
	p.data.DeviceID = "device_" + uuid.NewString()
	if err := p.save(); err != nil {
		return "", err
	}
	return p.data.DeviceID, nil
}

// ClearDeviceID removes the device identifier so the next login binds
// a fresh one. Called on logout.
func (p *Prefs) ClearDeviceID() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.data.DeviceID == "" {
		return nil
	}
	p.data.DeviceID = ""
	return p.save()
}

// DisplayName returns the saved display name for a username, or
// DefaultDisplayName when none is saved.
func (p *Prefs) DisplayName(username string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := strings.TrimSpace(p.data.DisplayNames[strings.ToLower(username)])
	if name == "" {
		return DefaultDisplayName
	}
	return name
}

// SetDisplayName saves a display name for a username. A blank name
// resets to the default.
func (p *Prefs) SetDisplayName(username, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayName
	}
	if p.data.DisplayNames == nil {
		p.data.DisplayNames = make(map[string]string)
	}
	p.data.DisplayNames[strings.ToLower(username)] = name
	return p.save()
}

func (p *Prefs) save() error {
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding prefs: %w", err)
	}
	if err := os.WriteFile(p.path, raw, 0o600); err != nil {
		return fmt.Errorf("writing prefs file: %w", err)
	}
	return nil
}
