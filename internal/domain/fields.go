package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// Fields es una actualizacion parcial de un documento.
// Una clave con puntos ("personal.fullName") actualiza solo ese campo anidado.
type Fields map[string]any

var ErrInvalidFieldPath = errors.New("invalid field path")

// Normalize convierte los valores a su forma JSON (string, float64, map, slice, bool, nil).
func (f Fields) Normalize() (Fields, error) {
	if len(f) == 0 {
		return Fields{}, nil
	}
	data, err := json.Marshal(map[string]any(f))
	if err != nil {
		return nil, err
	}
	var out Fields
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyFields devuelve una copia de doc con fields aplicado.
// Los valores de primer nivel se reemplazan completos; los caminos con puntos crean los
// mapas intermedios que falten. doc no se modifica.
func ApplyFields(doc map[string]any, fields Fields) (map[string]any, error) {
	normalized, err := fields.Normalize()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(doc)+len(normalized))
	for k, v := range doc {
		out[k] = v
	}
	for path, value := range normalized {
		parts := strings.Split(path, ".")
		for _, p := range parts {
			if p == "" {
				return nil, ErrInvalidFieldPath
			}
		}
		setPath(out, parts, value)
	}
	return out, nil
}

func setPath(target map[string]any, parts []string, value any) {
	if len(parts) == 1 {
		target[parts[0]] = value
		return
	}
	next := make(map[string]any)
	if existing, ok := target[parts[0]].(map[string]any); ok {
		for k, v := range existing {
			next[k] = v
		}
	}
	target[parts[0]] = next
	setPath(next, parts[1:], value)
}
