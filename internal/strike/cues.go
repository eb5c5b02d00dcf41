package strike

// UpwardCues are phrases that tie a nearby amount to an upper strike. Multi
// word phrases match with any run of whitespace between words.
var UpwardCues = []string{
	"reach",
	"hit",
	"hits",
	"touch",
	"tag",
	"rise to",
	"rally to",
	"climb to",
	"surge to",
	"jump to",
	"pump to",
	"break above",
	"above",
}

// DownwardCues are phrases that tie a nearby amount to a lower strike.
var DownwardCues = []string{
	"dip to",
	"drop to",
	"fall to",
	"crash to",
	"sink to",
	"dump to",
	"plunge to",
	"break below",
	"below",
}

// ComparisonWords mark "X or Y first" style titles where two price levels are
// raced against each other.
var ComparisonWords = []string{
	"or",
	"vs",
	"versus",
	"first",
}

// magnitudes maps an amount suffix to its multiplier.
var magnitudes = map[byte]float64{
	'k': 1_000,
	'm': 1_000_000,
	'b': 1_000_000_000,
}
