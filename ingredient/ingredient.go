// Package ingredient turns free-text ingredient requests into structured
// quantities and converts them into store package counts.
package ingredient

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

type Unit string

const (
	UnitGram       Unit = "g"
	UnitMilliliter Unit = "ml"
	UnitPiece      Unit = "vnt"
	UnitNone       Unit = "none"
)

// Parsed is an ingredient request like "bulvės 500g" broken apart.
// NeededAmount is always in base units (grams, milliliters or pieces).
type Parsed struct {
	Name         string
	NeededAmount float64
	Unit         Unit
	Original     string
}

// Package is the size of a single package as sold by a store.
type Package struct {
	Size float64
	Unit Unit
}

var requestPatterns = []*regexp.Regexp{
	// weight: "bulvės 500g" or "bulvės 1kg"
	regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:\.\d+)?)(kg|g)$`),
	// volume: "pienas 1l" or "aliejus 50ml"
	regexp.MustCompile(`(?i)^(.+?)\s+(\d+(?:\.\d+)?)(l|ml)$`),
	// count: "morkos 3vnt"
	regexp.MustCompile(`(?i)^(.+?)\s+(\d+)(vnt)$`),
}

// Parse breaks an ingredient string into a name and a needed amount.
// a string without a recognized quantity suffix comes back whole with
// Unit == UnitNone, which downstream means "buy exactly one package".
func Parse(s string) Parsed {
	original := strings.TrimSpace(s)

	for _, pattern := range requestPatterns {
		match := pattern.FindStringSubmatch(original)
		if match == nil {
			continue
		}

		name := strings.TrimSpace(match[1])
		amount, err := strconv.ParseFloat(match[2], 64)
		if err != nil {
			continue
		}

		amount, unit := toBaseUnits(amount, strings.ToLower(match[3]))
		return Parsed{
			Name:         name,
			NeededAmount: amount,
			Unit:         unit,
			Original:     original,
		}
	}

	return Parsed{
		Name:         original,
		NeededAmount: 1,
		Unit:         UnitNone,
		Original:     original,
	}
}

var packagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg|g)\b`),
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(l|ml)\b`),
	regexp.MustCompile(`(?i)(\d+)\s*(vnt\.?)`),
}

// ParsePackageSize pulls a package size out of a scraped product label,
// e.g. "Bulvės fasuotos 1kg" or "Pienas 2,5% 1L". reports false when the
// label carries no recognizable size.
func ParsePackageSize(label string) (Package, bool) {
	// scraped labels use a decimal comma
	label = strings.ReplaceAll(label, ",", ".")

	for _, pattern := range packagePatterns {
		match := pattern.FindStringSubmatch(label)
		if match == nil {
			continue
		}
		amount, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		size, unit := toBaseUnits(amount, strings.ToLower(strings.TrimSuffix(match[2], ".")))
		return Package{Size: size, Unit: unit}, true
	}

	return Package{}, false
}

func toBaseUnits(amount float64, unit string) (float64, Unit) {
	switch unit {
	case "kg":
		return amount * 1000, UnitGram
	case "g":
		return amount, UnitGram
	case "l":
		return amount * 1000, UnitMilliliter
	case "ml":
		return amount, UnitMilliliter
	default:
		return amount, UnitPiece
	}
}

// PackagesNeeded decides how many packages of `pkg` satisfy the request.
// it never under-buys (weight and volume round up) and degrades to a
// single package whenever the request and package cannot be reconciled.
// the result is always at least 1.
func PackagesNeeded(needed Parsed, pkg Package) int {
	if needed.Unit == UnitNone {
		return 1
	}

	// recipe wants pieces but the store sells by weight: estimate the
	// total weight from the per-ingredient average piece weight.
	if needed.Unit == UnitPiece && pkg.Unit == UnitGram {
		weight, ok := estimateWeight(needed.Name, needed.NeededAmount)
		if !ok {
			return 1
		}
		return ceilPackages(weight, pkg.Size)
	}

	// recipe wants weight but the store sells by piece count.
	if needed.Unit == UnitGram && pkg.Unit == UnitPiece {
		perPackage, ok := estimateWeight(needed.Name, pkg.Size)
		if !ok {
			return 1
		}
		return ceilPackages(needed.NeededAmount, perPackage)
	}

	if needed.Unit != pkg.Unit {
		return 1
	}

	if needed.Unit == UnitPiece {
		return int(math.Max(1, needed.NeededAmount))
	}

	return ceilPackages(needed.NeededAmount, pkg.Size)
}

func ceilPackages(needed, size float64) int {
	if size <= 0 || needed <= 0 {
		return 1
	}
	return int(math.Max(1, math.Ceil(needed/size)))
}
