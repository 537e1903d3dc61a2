package trade

// defaultCatalogIDs is the built-in item list used when no catalog file is configured.
var defaultCatalogIDs = []string{
	"BATCAVE ACCESS CARD",
	"RA'S AL GHUL'S LAZARUS PIT",
	"ANKH AMULET",
	"MANACLES OF FORCE",
	"POWER GLOVE",
	"THE MERCILESS",
	"THE DROWNED",
	"CLEANING SUPPLIES",
	"THE PENGUIN'S UMBRELLA",
	"HARVEY DENT'S COURT TRANSCRIPTS",
	"THE RIDDLER'S PUZZLE SIMULATOR",
	"MAGGIE KYLE'S TREATMENT PLAN",
	"ALFRED'S CONTENGENCY PLANS",
	"DAMIAN WAYNE'S GENETIC CODE",
	"JASON TODD'S RESOURCE PACKAGE",
	"PROTOTYPE BATRANG",
	"GORDON'S POLICE BADGE",
	"HELMET OF FATE",
	"SEAL OF CLARITY",
	"TRIDENT OF NEPTUNE",
	"TEAR OF EXTUNCTION",
	"THE DEVASTATOR",
	"RED DEATH",
	"THE BATMAN WHO LAUGHS",
	"MAP OF THE DARK MULTIVERSE",
	"BARBATOS",
	"LIQUID NITROGEN TANK",
	"PSYCHIATRIC NOTES",
	"SILPHIUM SEEDS",
	"THE JOKER FISH",
	"TALON MASK",
	"CYBERNETIC NERVE IMPLANT",
	"COLD CASE LIBRARY",
	"JASON TODD'S ROBIN COSTUME",
	"CATWOMAN'S ENGAGEMENT RING",
	"ARKHAM ASYLUM KEY",
	"THE JOKER'S TOXIN VIAL",
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(defaultCatalogIDs)
	if err != nil {
		panic(err)
	}

	return catalog
}
