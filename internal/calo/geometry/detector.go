package geometry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrReadoutNotFound is returned when a readout name is not registered.
var ErrReadoutNotFound = errors.New("readout not found")

// ReadoutRegistry resolves readout names to segmentations.
type ReadoutRegistry interface {
	Segmentation(readout string) (Segmentation, bool)
}

// Detector is an in-memory ReadoutRegistry. It is safe for concurrent
// lookups once populated.
type Detector struct {
	mu       sync.RWMutex
	readouts map[string]Segmentation
}

// NewDetector returns an empty registry.
func NewDetector() *Detector {
	return &Detector{readouts: make(map[string]Segmentation)}
}

// AddReadout registers a segmentation under its Name.
func (d *Detector) AddReadout(seg Segmentation) error {
	if seg == nil {
		return fmt.Errorf("nil segmentation")
	}
	name := seg.Name()
	if name == "" {
		return fmt.Errorf("segmentation has no readout name")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.readouts[name]; exists {
		return fmt.Errorf("readout %q already registered", name)
	}
	d.readouts[name] = seg
	diagf("registered readout %s (%s)", name, seg.Kind())
	return nil
}

// Segmentation implements ReadoutRegistry.
func (d *Detector) Segmentation(readout string) (Segmentation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seg, ok := d.readouts[readout]
	return seg, ok
}

// Readouts lists registered readout names, sorted.
func (d *Detector) Readouts() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.readouts))
	for name := range d.readouts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequireSegmentation is Segmentation for readouts that must exist. An
// unsupported segmentation is reported as ErrInvalidSegmentation.
func RequireSegmentation(reg ReadoutRegistry, readout string) (Segmentation, error) {
	if reg == nil {
		return nil, fmt.Errorf("no readout registry configured")
	}
	seg, ok := reg.Segmentation(readout)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrReadoutNotFound, readout)
	}
	if seg.Kind() == KindInvalid {
		_, err := seg.Grid(0)
		return nil, err
	}
	return seg, nil
}

var _ ReadoutRegistry = (*Detector)(nil)
