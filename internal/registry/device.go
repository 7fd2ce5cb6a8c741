package registry

import (
	"os"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/noise-cli/internal/model"
)

// DefaultTimezone is the reporting timezone of the built-in device list.
const DefaultTimezone = "Asia/Singapore"

// defaultDevices is the deployed noise meter network.
var defaultDevices = []model.Device{
	{ID: "15490", Name: "Singapore Sports School"},
	{ID: "16034", Name: "BLK 120 Serangoon North Ave 1"},
	{ID: "16041", Name: "BLK 838 Hougang Central"},
	{ID: "14542", Name: "BLK 558 Jurong West Street 42"},
	{ID: "15725", Name: "Jurong Safra, Block C"},
	{ID: "16032", Name: "AMA KENG SITE"},
	{ID: "16045", Name: "BLK 19 Balam Road"},
	{ID: "15820", Name: "Norcom II Tower 4"},
	{ID: "15821", Name: "Blk 444 Choa Chu Kang Avenue 4"},
	{ID: "15999", Name: "BLK 654B Punggol Drive"},
	{ID: "16026", Name: "BLK 132B Tengah Garden Avenue"},
	{ID: "16004", Name: "BLK 206A Punggol Place"},
	{ID: "16005", Name: "Woodlands 11"},
}

// DeviceRegistry is an immutable, indexed set of devices. It is built once at
// startup and shared read-only for the lifetime of the process.
type DeviceRegistry struct {
	devices []model.Device
	byID    map[string]int
}

// NewDeviceRegistry validates devices and indexes them by id. Devices without
// a timezone inherit defaultTZ.
func NewDeviceRegistry(devices []model.Device, defaultTZ string) (*DeviceRegistry, error) {
	if len(devices) == 0 {
		return nil, eris.New("registry: no devices configured")
	}
	if defaultTZ == "" {
		defaultTZ = DefaultTimezone
	}

	r := &DeviceRegistry{
		devices: make([]model.Device, 0, len(devices)),
		byID:    make(map[string]int, len(devices)),
	}
	locs := make(map[string]*time.Location)
	for _, d := range devices {
		if d.ID == "" {
			return nil, eris.Errorf("registry: device %q has empty id", d.Name)
		}
		if _, dup := r.byID[d.ID]; dup {
			return nil, eris.Errorf("registry: duplicate device id %s", d.ID)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if d.Timezone == "" {
			d.Timezone = defaultTZ
		}
		loc, ok := locs[d.Timezone]
		if !ok {
			var err error
			loc, err = time.LoadLocation(d.Timezone)
			if err != nil {
				return nil, eris.Wrapf(err, "registry: device %s timezone %q", d.ID, d.Timezone)
			}
			locs[d.Timezone] = loc
		}
		d.Location = loc
		r.byID[d.ID] = len(r.devices)
		r.devices = append(r.devices, d)
	}
	return r, nil
}

// Default returns the registry of the built-in device list.
func Default(defaultTZ string) (*DeviceRegistry, error) {
	return NewDeviceRegistry(defaultDevices, defaultTZ)
}

type deviceFile struct {
	Devices []model.Device `yaml:"devices"`
}

// LoadFile reads a YAML device list of the form:
//
//	devices:
//	  - id: "15490"
//	    name: Singapore Sports School
//	    timezone: Asia/Singapore
func LoadFile(path, defaultTZ string) (*DeviceRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read %s", path)
	}
	var f deviceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s", path)
	}
	return NewDeviceRegistry(f.Devices, defaultTZ)
}

// Load returns the registry from path, or the built-in list when path is empty.
func Load(path, defaultTZ string) (*DeviceRegistry, error) {
	if path == "" {
		return Default(defaultTZ)
	}
	return LoadFile(path, defaultTZ)
}

// All returns a copy of the devices in registration order.
func (r *DeviceRegistry) All() []model.Device {
	out := make([]model.Device, len(r.devices))
	copy(out, r.devices)
	return out
}

// ByID returns the device with the given id.
func (r *DeviceRegistry) ByID(id string) (model.Device, bool) {
	i, ok := r.byID[id]
	if !ok {
		return model.Device{}, false
	}
	return r.devices[i], true
}

// IDs returns every device id in registration order.
func (r *DeviceRegistry) IDs() []string {
	ids := make([]string, len(r.devices))
	for i, d := range r.devices {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of registered devices.
func (r *DeviceRegistry) Len() int {
	return len(r.devices)
}

// Filter returns the subset of ids that are registered, sorted and
// deduplicated. An empty input selects every device.
func (r *DeviceRegistry) Filter(ids []string) []string {
	if len(ids) == 0 {
		return r.IDs()
	}
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if _, ok := r.byID[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
