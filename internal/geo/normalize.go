package geo

import (
	"encoding/json"
	"fmt"
	"strconv"

	"mapdna/platform/sanitize"
)

// AddressInput is the shape an editor submits for an address field. Numbers
// arrive as strings from form posts, so they are parsed leniently.
type AddressInput struct {
	Formatted    string          `json:"formatted" yaml:"formatted"`
	Raw          json.RawMessage `json:"raw,omitempty" yaml:"-"`
	Name         string          `json:"name" yaml:"name"`
	Street1      string          `json:"street1" yaml:"street1"`
	Street2      string          `json:"street2" yaml:"street2"`
	City         string          `json:"city" yaml:"city"`
	State        string          `json:"state" yaml:"state"`
	Zip          string          `json:"zip" yaml:"zip"`
	Neighborhood string          `json:"neighborhood" yaml:"neighborhood"`
	County       string          `json:"county" yaml:"county"`
	Country      string          `json:"country" yaml:"country"`
	ProviderID   string          `json:"mapboxId" yaml:"mapboxId"`
	Lng          string          `json:"lng" yaml:"lng" validate:"omitempty,longitude"`
	Lat          string          `json:"lat" yaml:"lat" validate:"omitempty,latitude"`
	Zoom         string          `json:"zoom" yaml:"zoom" validate:"omitempty,numeric"`
}

// Record is an address row as loaded from storage.
type Record struct {
	ID           int64
	OwnerID      int64
	FieldID      int64
	Formatted    *string
	Raw          []byte
	Name         *string
	Street1      *string
	Street2      *string
	City         *string
	State        *string
	Zip          *string
	Neighborhood *string
	County       *string
	Country      *string
	ProviderID   *string
	Lng          *float64
	Lat          *float64
	Zoom         *float64
}

// FromInput builds an Address owned by (ownerID, fieldID) from editor input.
// Text parts are sanitized; coordinates that do not parse are dropped. When
// both coordinates are known but zoom is not, zoom defaults to 0.
func FromInput(in AddressInput, ownerID, fieldID int64) *Address {
	a := &Address{
		OwnerID:      ownerID,
		FieldID:      fieldID,
		Formatted:    sanitize.Text(in.Formatted),
		Name:         sanitize.Text(in.Name),
		Street1:      sanitize.Text(in.Street1),
		Street2:      sanitize.Text(in.Street2),
		City:         sanitize.Text(in.City),
		State:        sanitize.Text(in.State),
		Zip:          sanitize.Text(in.Zip),
		Neighborhood: sanitize.Text(in.Neighborhood),
		County:       sanitize.Text(in.County),
		Country:      sanitize.Text(in.Country),
		ProviderID:   sanitize.Text(in.ProviderID),
		Location: Location{
			Lng: ParseFloat(in.Lng),
			Lat: ParseFloat(in.Lat),
		},
		Zoom: ParseFloat(in.Zoom),
	}
	if len(in.Raw) > 0 && json.Valid(in.Raw) {
		a.Raw = append(json.RawMessage(nil), in.Raw...)
	}
	defaultZoom(a)
	return a
}

// FromRecord builds an Address from a stored row. Raw provider payloads that
// are not valid JSON are discarded.
func FromRecord(r Record) *Address {
	a := &Address{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		FieldID:      r.FieldID,
		Formatted:    deref(r.Formatted),
		Name:         deref(r.Name),
		Street1:      deref(r.Street1),
		Street2:      deref(r.Street2),
		City:         deref(r.City),
		State:        deref(r.State),
		Zip:          deref(r.Zip),
		Neighborhood: deref(r.Neighborhood),
		County:       deref(r.County),
		Country:      deref(r.Country),
		ProviderID:   deref(r.ProviderID),
		Location:     Location{Lng: r.Lng, Lat: r.Lat},
		Zoom:         r.Zoom,
	}
	if len(r.Raw) > 0 && json.Valid(r.Raw) && string(r.Raw) != "null" {
		a.Raw = append(json.RawMessage(nil), r.Raw...)
	}
	defaultZoom(a)
	return a
}

// NormalizeValue turns whatever a field holds into an Address. An existing
// *Address passes through unchanged. A nil value yields a nil Address.
func NormalizeValue(value any, ownerID, fieldID int64) (*Address, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *Address:
		return v, nil
	case Address:
		return &v, nil
	case AddressInput:
		return FromInput(v, ownerID, fieldID), nil
	case *AddressInput:
		if v == nil {
			return nil, nil
		}
		return FromInput(*v, ownerID, fieldID), nil
	case Record:
		return FromRecord(v), nil
	case map[string]any:
		return FromInput(InputFromMap(v), ownerID, fieldID), nil
	default:
		return nil, fmt.Errorf("unsupported address value %T", value)
	}
}

// InputFromMap reads editor input from a decoded JSON or YAML object.
func InputFromMap(m map[string]any) AddressInput {
	str := func(key string) string {
		switch v := m[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case json.Number:
			return v.String()
		default:
			return ""
		}
	}
	in := AddressInput{
		Formatted:    str("formatted"),
		Name:         str("name"),
		Street1:      str("street1"),
		Street2:      str("street2"),
		City:         str("city"),
		State:        str("state"),
		Zip:          str("zip"),
		Neighborhood: str("neighborhood"),
		County:       str("county"),
		Country:      str("country"),
		ProviderID:   str("mapboxId"),
		Lng:          str("lng"),
		Lat:          str("lat"),
		Zoom:         str("zoom"),
	}
	if raw, ok := m["raw"]; ok && raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			in.Raw = b
		}
	}
	return in
}

func defaultZoom(a *Address) {
	if a.HasCoords() && a.Zoom == nil {
		zero := 0.0
		a.Zoom = &zero
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
