package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type unit struct {
	dimension string
	// factor converts one of this unit into the dimension's base unit.
	factor float64
}

// Base units: metre, kilogram, litre, second, square metre, metre/second.
var unitTable = map[string]unit{
	"mm": {"length", 0.001}, "cm": {"length", 0.01}, "m": {"length", 1}, "km": {"length", 1000},
	"in": {"length", 0.0254}, "ft": {"length", 0.3048}, "yd": {"length", 0.9144}, "mi": {"length", 1609.344},
	"nmi": {"length", 1852},

	"mg": {"mass", 1e-6}, "g": {"mass", 0.001}, "kg": {"mass", 1}, "t": {"mass", 1000},
	"oz": {"mass", 0.028349523125}, "lb": {"mass", 0.45359237}, "st": {"mass", 6.35029318},

	"ml": {"volume", 0.001}, "l": {"volume", 1}, "m3": {"volume", 1000},
	"tsp": {"volume", 0.00492892159375}, "tbsp": {"volume", 0.01478676478125}, "cup": {"volume", 0.2365882365},
	"floz": {"volume", 0.0295735295625}, "pt": {"volume", 0.473176473}, "qt": {"volume", 0.946352946}, "gal": {"volume", 3.785411784},

	"ms": {"time", 0.001}, "s": {"time", 1}, "min": {"time", 60}, "h": {"time", 3600},
	"day": {"time", 86400}, "week": {"time", 604800}, "year": {"time", 31557600},

	"m2": {"area", 1}, "km2": {"area", 1e6}, "ha": {"area", 10000}, "acre": {"area", 4046.8564224},
	"ft2": {"area", 0.09290304}, "mi2": {"area", 2589988.110336},

	"m/s": {"speed", 1}, "km/h": {"speed", 1 / 3.6}, "mph": {"speed", 0.44704}, "kn": {"speed", 1852.0 / 3600},

	"c": {"temperature", 0}, "f": {"temperature", 0}, "k": {"temperature", 0},
}

var unitAliases = map[string]string{
	"meter": "m", "meters": "m", "metre": "m", "metres": "m",
	"kilometer": "km", "kilometers": "km", "centimeter": "cm", "centimeters": "cm",
	"millimeter": "mm", "millimeters": "mm", "inch": "in", "inches": "in",
	"foot": "ft", "feet": "ft", "yard": "yd", "yards": "yd", "mile": "mi", "miles": "mi",
	"gram": "g", "grams": "g", "kilogram": "kg", "kilograms": "kg", "tonne": "t", "tonnes": "t",
	"ounce": "oz", "ounces": "oz", "pound": "lb", "pounds": "lb", "lbs": "lb", "stone": "st",
	"liter": "l", "liters": "l", "litre": "l", "litres": "l", "milliliter": "ml", "milliliters": "ml",
	"gallon": "gal", "gallons": "gal", "pint": "pt", "pints": "pt", "quart": "qt", "quarts": "qt", "cups": "cup",
	"second": "s", "seconds": "s", "sec": "s", "minute": "min", "minutes": "min",
	"hour": "h", "hours": "h", "hr": "h", "days": "day", "weeks": "week", "years": "year",
	"hectare": "ha", "hectares": "ha", "acres": "acre",
	"kph": "km/h", "knot": "kn", "knots": "kn",
	"celsius": "c", "°c": "c", "fahrenheit": "f", "°f": "f", "kelvin": "k",
}

// UnitConverter converts between units of the same dimension.
type UnitConverter struct{}

func (UnitConverter) Name() string { return "unit_convert" }

func (UnitConverter) Description() string {
	return "Convert a value between units of length, mass, volume, time, area, speed or temperature, e.g. 5 mi to km."
}

func (UnitConverter) Schema() map[string]any {
	return objectSchema([]string{"value", "from", "to"}, map[string]any{
		"value": map[string]any{"type": "number"},
		"from":  map[string]any{"type": "string", "description": "Source unit, e.g. mi, kg, celsius."},
		"to":    map[string]any{"type": "string", "description": "Target unit."},
	})
}

// Call implements Tool.
func (u UnitConverter) Call(_ context.Context, args map[string]any) (string, error) {
	value, err := numberArg(args, "value")
	if err != nil {
		return "", err
	}
	from, err := stringArg(args, "from")
	if err != nil {
		return "", err
	}
	to, err := stringArg(args, "to")
	if err != nil {
		return "", err
	}
	out, err := Convert(value, from, to)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s = %s %s", formatNumber(value), from, formatNumber(out), to), nil
}

// Convert converts value from one unit to another.
func Convert(value float64, from, to string) (float64, error) {
	fk, fu, err := lookupUnit(from)
	if err != nil {
		return 0, err
	}
	tk, tu, err := lookupUnit(to)
	if err != nil {
		return 0, err
	}
	if fu.dimension != tu.dimension {
		return 0, fmt.Errorf("cannot convert %s (%s) to %s (%s)", from, fu.dimension, to, tu.dimension)
	}
	if fu.dimension == "temperature" {
		return convertTemperature(value, fk, tk), nil
	}
	return value * fu.factor / tu.factor, nil
}

func lookupUnit(name string) (string, unit, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := unitAliases[key]; ok {
		key = alias
	}
	u, ok := unitTable[key]
	if !ok {
		known := make([]string, 0, len(unitTable))
		for k := range unitTable {
			known = append(known, k)
		}
		sort.Strings(known)
		return "", unit{}, fmt.Errorf("unknown unit %q (known: %s)", name, strings.Join(known, ", "))
	}
	return key, u, nil
}

func convertTemperature(v float64, from, to string) float64 {
	var kelvin float64
	switch from {
	case "c":
		kelvin = v + 273.15
	case "f":
		kelvin = (v-32)*5/9 + 273.15
	default:
		kelvin = v
	}
	switch to {
	case "c":
		return kelvin - 273.15
	case "f":
		return (kelvin-273.15)*9/5 + 32
	default:
		return kelvin
	}
}

// formatNumber rounds to nine decimal places to hide float noise.
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e9)/1e9, 'f', -1, 64)
}
