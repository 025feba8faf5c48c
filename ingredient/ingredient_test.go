package ingredient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, test := range []struct {
		input  string
		name   string
		amount float64
		unit   Unit
	}{
		{"Bulvės 1kg", "Bulvės", 1000, UnitGram},
		{"Bulvės 500g", "Bulvės", 500, UnitGram},
		{"Pienas 1l", "Pienas", 1000, UnitMilliliter},
		{"Aliejus 50ml", "Aliejus", 50, UnitMilliliter},
		{"Morkos 3vnt", "Morkos", 3, UnitPiece},
		{"Kiaušiniai 10VNT", "Kiaušiniai", 10, UnitPiece},
		{"Sviestas 0.5kg", "Sviestas", 500, UnitGram},
		{"Duona", "Duona", 1, UnitNone},
		{"  Grietinė  ", "Grietinė", 1, UnitNone},
		// the quantity must be a suffix, not mid-name
		{"Sūris 100g brandintas", "Sūris 100g brandintas", 1, UnitNone},
	} {
		parsed := Parse(test.input)
		require.Equal(t, test.name, parsed.Name, test.input)
		require.Equal(t, test.amount, parsed.NeededAmount, test.input)
		require.Equal(t, test.unit, parsed.Unit, test.input)
	}
}

func TestParsePackageSize(t *testing.T) {
	for _, test := range []struct {
		label string
		size  float64
		unit  Unit
		ok    bool
	}{
		{"Bulvės fasuotos 1kg", 1000, UnitGram, true},
		{"Pienas 2,5% 1l", 1000, UnitMilliliter, true},
		{"Kiaušiniai L 10 vnt.", 10, UnitPiece, true},
		{"Grietinė 30% 400g", 400, UnitGram, true},
		{"Aliejus 0,5 l", 500, UnitMilliliter, true},
		{"Šviežia duona", 0, "", false},
	} {
		pkg, ok := ParsePackageSize(test.label)
		require.Equal(t, test.ok, ok, test.label)
		if !ok {
			continue
		}
		require.Equal(t, test.size, pkg.Size, test.label)
		require.Equal(t, test.unit, pkg.Unit, test.label)
	}
}

func TestPackagesNeeded(t *testing.T) {
	for _, test := range []struct {
		name     string
		request  string
		pkg      Package
		packages int
	}{
		{"no quantity buys one", "Duona", Package{Size: 500, Unit: UnitGram}, 1},
		{"exact fit", "Bulvės 1kg", Package{Size: 1000, Unit: UnitGram}, 1},
		{"rounds up", "Bulvės 1kg", Package{Size: 400, Unit: UnitGram}, 3},
		{"volume rounds up", "Pienas 2l", Package{Size: 1000, Unit: UnitMilliliter}, 2},
		{"piece count passes through", "Morkos 3vnt", Package{Size: 1, Unit: UnitPiece}, 3},
		// 2 peppers at ~200g each need one 500g pack
		{"pieces into weight", "Paprika 2vnt", Package{Size: 500, Unit: UnitGram}, 1},
		// 4 peppers at ~200g each overflow one 500g pack
		{"pieces into weight rounds up", "Paprika 4vnt", Package{Size: 500, Unit: UnitGram}, 2},
		// 600g of tomatoes at ~150g a piece needs 4 single pieces
		{"weight into pieces", "Pomidorai 600g", Package{Size: 1, Unit: UnitPiece}, 4},
		{"unknown produce degrades to one", "Mangas 3vnt", Package{Size: 500, Unit: UnitGram}, 1},
		{"unit mismatch degrades to one", "Pienas 1l", Package{Size: 500, Unit: UnitGram}, 1},
		{"zero package size degrades to one", "Bulvės 1kg", Package{Size: 0, Unit: UnitGram}, 1},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := PackagesNeeded(Parse(test.request), test.pkg)
			require.Equal(t, test.packages, got)
		})
	}
}

func TestEstimateWeight(t *testing.T) {
	weight, ok := estimateWeight("Paprika raudona", 2)
	require.True(t, ok)
	require.Equal(t, float64(400), weight)

	// folded lookup: "Pomidorai" matches the "pomidor" stem
	weight, ok = estimateWeight("Pomidorai slyviniai", 1)
	require.True(t, ok)
	require.Equal(t, float64(150), weight)

	_, ok = estimateWeight("Mangas", 1)
	require.False(t, ok)
}
