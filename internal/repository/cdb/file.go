package cdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/alarm-core/internal/collection"
)

const (
	// DefaultRefreshRate is used when the file does not set ias.refresh_rate.
	DefaultRefreshRate = 3 * time.Second
	// DefaultValidityThreshold is used when the file does not set ias.validity_threshold.
	DefaultValidityThreshold = 10 * time.Second

	// alarmType is the ias_type of monitoring points that become alarms.
	alarmType = "ALARM"
)

var (
	// errMissingID is returned for an IASIO without an id.
	errMissingID = errors.New("iasio without id")
	// errDuplicateID is returned when two IASIOs share an id.
	errDuplicateID = errors.New("duplicate iasio id")
	// errMissingViewName is returned for a view without a name.
	errMissingViewName = errors.New("view without name")
)

// IAS holds the core-wide settings.
type IAS struct {
	// RefreshRate is how often producers refresh their values.
	RefreshRate time.Duration `yaml:"refresh_rate"`
	// ValidityThreshold is how old a value may get before it is unreliable.
	ValidityThreshold time.Duration `yaml:"validity_threshold"`
}

// IASIO describes one monitoring point.
type IASIO struct {
	ID        string `yaml:"id"`
	ShortDesc string `yaml:"short_desc"`
	DocURL    string `yaml:"doc_url"`
	Type      string `yaml:"ias_type"`
	CanShelve bool   `yaml:"can_shelve"`
	Sound     string `yaml:"sound"`
}

// View groups alarms whose active unacknowledged count is displayed together.
type View struct {
	Name   string   `yaml:"name"`
	Alarms []string `yaml:"alarms"`
}

// Document is the on-disk layout of the configuration database.
type Document struct {
	IAS    IAS     `yaml:"ias"`
	IASIOs []IASIO `yaml:"iasios"`
	Views  []View  `yaml:"views"`
}

// FileProvider serves a configuration database loaded from a YAML file.
// It implements collection.ConfigProvider and collection.ViewProvider.
type FileProvider struct {
	document   Document
	membership map[string][]string
	viewNames  []string
}

// Load reads and validates the file at path.
func Load(path string) (*FileProvider, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read configuration database: %w", err)
	}

	var document Document
	if err = yaml.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("unmarshal configuration database: %w", err)
	}

	return New(document)
}

// New validates document and builds a provider from it.
func New(document Document) (*FileProvider, error) {
	if document.IAS.RefreshRate <= 0 {
		document.IAS.RefreshRate = DefaultRefreshRate
	}

	if document.IAS.ValidityThreshold <= 0 {
		document.IAS.ValidityThreshold = DefaultValidityThreshold
	}

	seen := make(map[string]struct{}, len(document.IASIOs))

	for i, iasio := range document.IASIOs {
		if strings.TrimSpace(iasio.ID) == "" {
			return nil, fmt.Errorf("%w at position %d", errMissingID, i)
		}

		if _, ok := seen[iasio.ID]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateID, iasio.ID)
		}

		seen[iasio.ID] = struct{}{}
	}

	p := &FileProvider{
		document:   document,
		membership: make(map[string][]string),
	}

	for i, view := range document.Views {
		if strings.TrimSpace(view.Name) == "" {
			return nil, fmt.Errorf("%w at position %d", errMissingViewName, i)
		}

		p.viewNames = append(p.viewNames, view.Name)

		for _, id := range view.Alarms {
			if !slices.Contains(p.membership[id], view.Name) {
				p.membership[id] = append(p.membership[id], view.Name)
			}
		}
	}

	slices.Sort(p.viewNames)
	p.viewNames = slices.Compact(p.viewNames)

	return p, nil
}

// InitialAlarms returns the IASIOs of type ALARM.
func (p *FileProvider) InitialAlarms(context.Context) ([]collection.Definition, error) {
	var definitions []collection.Definition

	for _, iasio := range p.document.IASIOs {
		if !strings.EqualFold(iasio.Type, alarmType) {
			continue
		}

		definitions = append(definitions, collection.Definition{
			CoreID:      iasio.ID,
			Description: iasio.ShortDesc,
			URL:         iasio.DocURL,
			Sound:       iasio.Sound,
			CanShelve:   iasio.CanShelve,
		})
	}

	return definitions, nil
}

// RefreshRate returns the producer refresh rate.
func (p *FileProvider) RefreshRate() time.Duration {
	return p.document.IAS.RefreshRate
}

// ValidityThreshold returns how old a value may get before it is unreliable.
func (p *FileProvider) ValidityThreshold() time.Duration {
	return p.document.IAS.ValidityThreshold
}

// ViewsOf returns the names of the views coreID belongs to.
func (p *FileProvider) ViewsOf(coreID string) []string {
	return slices.Clone(p.membership[coreID])
}

// ViewNames returns every configured view name.
func (p *FileProvider) ViewNames() []string {
	return slices.Clone(p.viewNames)
}
