package vocab

// DefaultFile is the built-in vocabulary. Grade units convert to g/t,
// tonnage units to tonnes and metal units to koz of gold.
func DefaultFile() File {
	return File{
		Categories: map[string][]string{
			"Measured": {
				"measured", "meas", "mea", "measured resource", "measured resources",
				"measured mineral resource", "measured mineral resources",
			},
			"Indicated": {
				"indicated", "ind", "indic", "indicated resource", "indicated resources",
				"indicated mineral resource", "indicated mineral resources",
			},
			"Inferred": {
				"inferred", "inf", "infer", "inferred resource", "inferred resources",
				"inferred mineral resource", "inferred mineral resources",
			},
			"Measured+Indicated": {
				"measured & indicated", "measured and indicated", "measured + indicated",
				"measured+indicated", "m&i", "m & i", "m+i",
			},
		},
		IgnoreRows: []string{"total", "totals", "subtotal", "sub-total", "sub total", "grand total"},
		Columns: map[string][]string{
			"deposit":  {"deposit", "deposits", "project", "prospect", "deposit name", "location", "area", "pit"},
			"category": {"category", "classification", "class", "resource category", "jorc category", "jorc classification", "resource classification"},
			"tonnage":  {"tonnes", "tonnage", "tons", "ore", "ore tonnes"},
			"grade":    {"grade", "au grade", "head grade"},
			"metal":    {"contained", "ounces", "oz", "koz", "moz", "metal", "contained gold", "contained metal", "au ounces"},
		},
		Units: UnitTables{
			Tonnage: map[string]float64{
				"t": 1, "tonnes": 1, "tonne": 1,
				"kt": 1e3, "'000": 1e3, "'000t": 1e3, "000t": 1e3, "'000 tonnes": 1e3, "kilotonnes": 1e3,
				"mt": 1e6, "mtonnes": 1e6, "million tonnes": 1e6,
			},
			Grade: map[string]float64{
				"g/t": 1, "gpt": 1, "g/tonne": 1, "ppm": 1,
				"ppb":  1e-3,
				"oz/t": 34.285714,
				"%":    1e4,
			},
			Metal: map[string]float64{
				"oz": 1e-3, "koz": 1, "'000oz": 1, "moz": 1e3,
			},
		},
		Commodities: map[string][]string{
			"gold": {"au", "gold", "oz", "koz", "moz", "ounces"},
			"other": {
				"cu", "copper", "ni", "nickel", "li2o", "lithium", "zn", "zinc", "pb", "lead",
				"ag", "silver", "co", "cobalt", "sn", "tin", "u3o8", "uranium", "fe", "iron",
				"mn", "manganese", "v2o5", "vanadium", "graphite", "tgc", "treo",
			},
		},
	}
}
