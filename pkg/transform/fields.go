package transform

import (
	"fmt"
	"strings"

	"github.com/siqueiraa/HubSync/pkg/entity"
	"github.com/siqueiraa/HubSync/pkg/mapping"
)

// normalizeField turns one property into a field. ok is false when the
// property is filtered out or holds no value.
func (t *Transformer) normalizeField(m mapping.EntityMapping, e *entity.Entity, p entity.Property) (name string, value any, ok bool, err error) {
	if p.Name == "" || !m.Includes(p.Name) {
		return "", nil, false, nil
	}

	l, err := e.Lookup(p.Name)
	if err != nil {
		return "", nil, false, fmt.Errorf("property %s: %w", p.Name, err)
	}
	if l.State == entity.NeedsLocale {
		l, err = e.LookupCulture(p.Name, t.fallbackCulture)
		if err != nil {
			return "", nil, false, fmt.Errorf("property %s (%s): %w", p.Name, t.fallbackCulture, err)
		}
		t.rec.CultureFallback(e.ID, p.Name, t.fallbackCulture)
	}
	if l.State != entity.Found || l.Value == nil {
		return "", nil, false, nil
	}

	value = l.Value
	if p.IsStringArray() {
		items, err := entity.Strings(value)
		if err != nil {
			return "", nil, false, fmt.Errorf("property %s: %w", p.Name, err)
		}
		if len(items) == 0 {
			return "", nil, false, nil
		}
		value = strings.Join(items, "|")
	}
	return strings.ToLower(p.Name), value, true, nil
}
